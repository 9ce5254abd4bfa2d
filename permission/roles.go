package permission

import (
	"errors"
	"sync"
)

// Blog capabilities registered by DefaultBlogRoles.
const (
	PostCreate      = "post.create"
	PostEditOwn     = "post.edit_own"
	PostEditAny     = "post.edit_any"
	PostPublish     = "post.publish"
	PostDelete      = "post.delete"
	CommentModerate = "comment.moderate"
	MediaUpload     = "media.upload"
	UserManage      = "user.manage"
)

// Root is the role name granted the root bit by DefaultBlogRoles.
const Root = "admin"

// RoleManager holds the capability mask of every role.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask64
	frozen bool
}

func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask64),
	}
}

// RegisterRole grants role the named capabilities. root sets the root bit,
// which requires a registry created with the root reserved.
func (rm *RoleManager) RegisterRole(role string, permissions []string, root bool) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return ErrFrozen
	}

	if role == "" {
		return errors.New("role name empty")
	}

	if _, exists := rm.roles[role]; exists {
		return errors.New("role already registered: " + role)
	}

	var mask Mask64
	if root {
		if !rm.registry.RootReserved() {
			return errors.New("root bit not reserved")
		}
		mask.Set(maxBits - 1)
	}

	for _, perm := range permissions {
		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return errors.Join(ErrUnknown, errors.New(perm))
		}
		mask.Set(bit)
	}

	rm.roles[role] = mask
	return nil
}

// Mask returns the mask of role.
func (rm *RoleManager) Mask(role string) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	mask, ok := rm.roles[role]
	return mask, ok
}

// Allows reports whether role holds permission. Unknown roles and unknown
// permissions are denied.
func (rm *RoleManager) Allows(role, permission string) bool {
	if rm == nil {
		return false
	}
	mask, ok := rm.Mask(role)
	if !ok {
		return false
	}
	bit, ok := rm.registry.Bit(permission)
	if !ok {
		return false
	}
	return mask.Has(bit, rm.registry.RootReserved())
}

// Permissions lists the capabilities of role in bit order.
func (rm *RoleManager) Permissions(role string) []string {
	if rm == nil {
		return nil
	}
	mask, ok := rm.Mask(role)
	if !ok {
		return nil
	}

	root := rm.registry.RootReserved()
	out := make([]string, 0, rm.registry.Count())
	for bit := 0; bit < rm.registry.Count(); bit++ {
		if !mask.Has(bit, root) {
			continue
		}
		if name, ok := rm.registry.Name(bit); ok {
			out = append(out, name)
		}
	}
	return out
}

// Freeze prevents further role registrations.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

// DefaultBlogRoles returns the frozen admin, editor and writer table.
func DefaultBlogRoles() *RoleManager {
	reg := NewRegistry(true)
	for _, name := range []string{
		PostCreate, PostEditOwn, PostEditAny, PostPublish,
		PostDelete, CommentModerate, MediaUpload, UserManage,
	} {
		if _, err := reg.Register(name); err != nil {
			panic(err)
		}
	}
	reg.Freeze()

	rm := NewRoleManager(reg)
	mustRegister := func(role string, perms []string, root bool) {
		if err := rm.RegisterRole(role, perms, root); err != nil {
			panic(err)
		}
	}
	mustRegister(Root, nil, true)
	mustRegister("editor", []string{PostCreate, PostEditOwn, PostEditAny, PostPublish, PostDelete, CommentModerate, MediaUpload}, false)
	mustRegister("writer", []string{PostCreate, PostEditOwn, MediaUpload}, false)
	rm.Freeze()
	return rm
}
