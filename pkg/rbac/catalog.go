package rbac

// Catalog enumerates every capability token the system understands.
// Grants referencing tokens outside the catalog are inert: kept in
// storage but never matched during resolution.
type Catalog struct {
	actions map[string]map[string]bool // resource -> action -> true
}

// Capability token vocabulary. Tokens are data, not code; the catalog
// is the single place new capabilities are declared.
const (
	TokenProjectsView   = "projects.view"
	TokenProjectsCreate = "projects.create"
	TokenProjectsUpdate = "projects.update"
	TokenProjectsDelete = "projects.delete"

	TokenTasksView   = "tasks.view"
	TokenTasksCreate = "tasks.create"
	TokenTasksUpdate = "tasks.update"
	TokenTasksAssign = "tasks.assign"
	TokenTasksDelete = "tasks.delete"

	TokenDocumentsView   = "documents.view"
	TokenDocumentsUpload = "documents.upload"
	TokenDocumentsDelete = "documents.delete"

	TokenFinancesView   = "finances.view"
	TokenFinancesManage = "finances.manage"

	TokenReportsView   = "reports.view"
	TokenReportsExport = "reports.export"

	TokenMembersView   = "members.view"
	TokenMembersInvite = "members.invite"
	TokenMembersManage = "members.manage"

	TokenTenantView   = "tenant.view"
	TokenTenantManage = "tenant.manage"

	TokenSecurityView = "security.view"
)

func allCatalogTokens() []string {
	return []string{
		TokenProjectsView, TokenProjectsCreate, TokenProjectsUpdate, TokenProjectsDelete,
		TokenTasksView, TokenTasksCreate, TokenTasksUpdate, TokenTasksAssign, TokenTasksDelete,
		TokenDocumentsView, TokenDocumentsUpload, TokenDocumentsDelete,
		TokenFinancesView, TokenFinancesManage,
		TokenReportsView, TokenReportsExport,
		TokenMembersView, TokenMembersInvite, TokenMembersManage,
		TokenTenantView, TokenTenantManage,
		TokenSecurityView,
	}
}

// DefaultCatalog returns the catalog of built-in capability tokens.
func DefaultCatalog() *Catalog {
	c := &Catalog{actions: make(map[string]map[string]bool)}
	for _, s := range allCatalogTokens() {
		c.add(MustToken(s))
	}
	return c
}

func (c *Catalog) add(t Token) {
	if t.kind != kindExact {
		return
	}
	if c.actions[t.resource] == nil {
		c.actions[t.resource] = make(map[string]bool)
	}
	c.actions[t.resource][t.action] = true
}

// Known reports whether an exact token is part of the catalog, or, for
// a resource wildcard, whether the resource has any catalog actions.
// The global wildcard is always known.
func (c *Catalog) Known(t Token) bool {
	switch t.kind {
	case kindGlobal:
		return true
	case kindResourceWildcard:
		return len(c.actions[t.resource]) > 0
	default:
		return c.actions[t.resource][t.action]
	}
}

// Tokens returns the full catalog vocabulary as canonical strings.
func (c *Catalog) Tokens() []string {
	return allCatalogTokens()
}
