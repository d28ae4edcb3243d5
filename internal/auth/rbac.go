package auth

// Gate is an authorisation predicate over roles. Gates are applied after
// the session has been re-validated, so a failing gate means Forbidden.
type Gate struct {
	name  string
	allow func(Role) bool
}

// Name identifies the gate in logs.
func (g Gate) Name() string { return g.name }

// Allows reports whether r passes the gate.
func (g Gate) Allows(r Role) bool {
	return g.allow != nil && g.allow(r)
}

// Gates.
var (
	RequireAuthenticated = Gate{name: "authenticated", allow: IsValidRole}
	RequireUploader      = Gate{name: "uploader", allow: CanUpload}
	RequireAdmin         = Gate{name: "admin", allow: CanManageUsers}
)

// Permission is a named capability.
type Permission string

// Permission constants.
const (
	PermMediaView    Permission = "media:view"
	PermMediaUpload  Permission = "media:upload"
	PermFolderCreate Permission = "folder:create"
	PermUserManage   Permission = "user:manage"
	PermAuditView    Permission = "audit:view"
)

// rolePermissions is the single source of truth for what each role may do.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermMediaView,
	},
	RoleUploader: {
		PermMediaView,
		PermMediaUpload,
		PermFolderCreate,
	},
	RoleAdmin: {
		PermMediaView,
		PermMediaUpload,
		PermFolderCreate,
		PermUserManage,
		PermAuditView,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the permissions granted to role,
// or nil for an unknown role.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}

// CanManageUsers reports whether role may administer accounts.
func CanManageUsers(role Role) bool { return HasPermission(role, PermUserManage) }

// CanUpload reports whether role may upload media and create folders.
func CanUpload(role Role) bool { return HasPermission(role, PermMediaUpload) }

// CanViewAudit reports whether role may read the audit log.
func CanViewAudit(role Role) bool { return HasPermission(role, PermAuditView) }

// CheckSelfUpdate rejects an admin removing their own admin rights or
// deactivating themselves.
func CheckSelfUpdate(actingUserID, targetID string, patch UserPatch) error {
	if actingUserID != targetID {
		return nil
	}
	if patch.Role != nil && *patch.Role != RoleAdmin {
		return ErrSelfModification
	}
	if patch.IsActive != nil && !*patch.IsActive {
		return ErrSelfModification
	}
	return nil
}

// CheckSelfDelete rejects deleting one's own account.
func CheckSelfDelete(actingUserID, targetID string) error {
	if actingUserID == targetID {
		return ErrSelfModification
	}
	return nil
}
