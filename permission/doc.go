// Package permission maps blog roles to capability bitmasks.
//
// A [Registry] assigns each capability name a bit in a [Mask64]; a
// [RoleManager] holds one mask per role. With the root bit reserved, a mask
// carrying it allows every capability. [DefaultBlogRoles] builds the admin,
// editor and writer roles used by the CMS.
//
// Access tokens carry only the role name, so capabilities follow the table
// at request time and a role change takes effect on the next refresh.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import blogAuth, jwt, or session.
package permission
