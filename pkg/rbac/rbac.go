// Package rbac decides which console commands an issuer may run.
package rbac

import "github.com/NicolasHaas/goplace/pkg/model"

// Permission is a class of console command.
type Permission int

const (
	PermUser       Permission = iota // help, profile, join, list, empty, lock, unlock
	PermModerate                     // kick, kickban, unban, warn, move, aliases, broadcast, modlog, modmsgs, modhelp
	PermGlobalMute                   // mute
)

// Privileges are an issuer's effective rights at the time a command runs.
type Privileges struct {
	IsMod     bool
	IsCreator bool
	CanMod    bool
}

// For computes privileges from a special status and the global mute flag.
// A muted moderator loses moderation rights; the creator never does.
func For(special model.Special, globalMute bool) Privileges {
	isMod := special.IsModerator()
	isCreator := special == model.SpecialCreator
	return Privileges{
		IsMod:     isMod,
		IsCreator: isCreator,
		CanMod:    (isMod && !globalMute) || isCreator,
	}
}

// HasPermission checks if the privileges cover a permission.
func HasPermission(p Privileges, perm Permission) bool {
	switch perm {
	case PermUser:
		return true
	case PermModerate:
		return p.CanMod
	case PermGlobalMute:
		return p.IsCreator
	default:
		return false
	}
}

func (p Permission) String() string {
	switch p {
	case PermUser:
		return "user"
	case PermModerate:
		return "moderate"
	case PermGlobalMute:
		return "global_mute"
	default:
		return "unknown"
	}
}
