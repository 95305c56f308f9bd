// Package rbac implements the authorization core: the permission token
// vocabulary, the role registry, and the resolver that computes a user's
// effective permission set for a single tenant.
//
// PERMISSION MODEL:
//
// Permissions are capability tokens of the form "resource.action"
// (e.g. "projects.view", "tenant.manage"). Two wildcard forms exist:
//
//   - "resource.*" grants every catalog action under that resource
//   - "*" grants everything (platform super-actors only)
//
// Tokens are parsed once at the boundary into a closed Token type
// (exact, resource wildcard, global) so the matching algorithm never
// re-splits strings. Tokens outside the catalog are inert: they may be
// stored in a role or override set without error, but they never match.
//
// RESOLUTION:
//
// The effective permission set for (user, tenant) is the union of the
// user's explicit overrides and the default set of the role on their
// ACTIVE membership in that tenant. An invited, suspended, or removed
// membership resolves to an empty set. Resolution is a pure read and is
// fail-closed: any missing data or storage error produces a deny, never
// an allow.
//
// ROLES:
//
// Roles are immutable configuration, not user data. Each role carries a
// default token set and a privilege rank used only for peer-protection
// comparisons (an actor may not demote or remove an actor of equal or
// higher rank). The built-in registry can be overlaid from a YAML file
// and hot-reloaded, which is how deployments tune role defaults without
// a rebuild.
package rbac
