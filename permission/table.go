package permission

// Permission names of the default HR deployment.
const (
	PermDashboardView = "dashboard.view"

	PermProfileView = "profile.view"
	PermProfileEdit = "profile.edit"

	PermEmployeesView   = "employees.view"
	PermEmployeesCreate = "employees.create"
	PermEmployeesEdit   = "employees.edit"
	PermEmployeesDelete = "employees.delete"

	PermPayrollView   = "payroll.view"
	PermPayrollManage = "payroll.manage"

	PermLeaveRequest = "leave.request"
	PermLeaveApprove = "leave.approve"

	PermReportsView   = "reports.view"
	PermReportsExport = "reports.export"

	PermUsersView        = "users.view"
	PermUsersManage      = "users.manage"
	PermUsersAssignRoles = "users.assign_roles"

	PermSettingsView   = "settings.view"
	PermSettingsManage = "settings.manage"

	PermAuditView = "audit.view"
)

// DefaultTable returns the HR deployment: viewer < user < hr_manager < admin,
// each inheriting the role below it.
func DefaultTable() Table {
	return Table{
		Categories: []Category{
			{Name: "dashboard", Permissions: []string{PermDashboardView}},
			{Name: "profile", Permissions: []string{PermProfileView, PermProfileEdit}},
			{Name: "employees", Permissions: []string{PermEmployeesView, PermEmployeesCreate, PermEmployeesEdit, PermEmployeesDelete}},
			{Name: "payroll", Permissions: []string{PermPayrollView, PermPayrollManage}},
			{Name: "leave", Permissions: []string{PermLeaveRequest, PermLeaveApprove}},
			{Name: "reports", Permissions: []string{PermReportsView, PermReportsExport}},
			{Name: "users", Permissions: []string{PermUsersView, PermUsersManage, PermUsersAssignRoles}},
			{Name: "settings", Permissions: []string{PermSettingsView, PermSettingsManage}},
			{Name: "audit", Permissions: []string{PermAuditView}},
		},
		Roles: []RoleDef{
			{
				Name:        "viewer",
				Level:       1,
				Permissions: []string{PermDashboardView, PermProfileView, PermEmployeesView},
			},
			{
				Name:        "user",
				Level:       2,
				Permissions: []string{PermProfileEdit, PermLeaveRequest, PermReportsView},
				Inherits:    []string{"viewer"},
			},
			{
				Name:  "hr_manager",
				Level: 3,
				Permissions: []string{
					PermEmployeesCreate, PermEmployeesEdit, PermPayrollView, PermLeaveApprove,
					PermReportsExport, PermUsersView, PermUsersAssignRoles,
				},
				Inherits: []string{"user"},
			},
			{
				Name:  "admin",
				Level: 4,
				Permissions: []string{
					PermEmployeesDelete, PermPayrollManage, PermUsersManage,
					PermSettingsView, PermSettingsManage, PermAuditView,
				},
				Inherits: []string{"hr_manager"},
			},
		},
		Routes: []Route{
			{Path: "/dashboard", AnyOf: []string{PermDashboardView}},
			{Path: "/profile", AnyOf: []string{PermProfileView}},
			{Path: "/employees", AnyOf: []string{PermEmployeesView}},
			{Path: "/employees/new", AnyOf: []string{PermEmployeesCreate}},
			{Path: "/payroll", AnyOf: []string{PermPayrollView}},
			{Path: "/leave", AnyOf: []string{PermLeaveRequest, PermLeaveApprove}},
			{Path: "/leave/approvals", AnyOf: []string{PermLeaveApprove}},
			{Path: "/reports", AnyOf: []string{PermReportsView}},
			{Path: "/users", AnyOf: []string{PermUsersView, PermUsersManage}},
			{Path: "/settings", AnyOf: []string{PermSettingsView}},
			{Path: "/audit", AnyOf: []string{PermAuditView}},
		},
		Menu: []MenuItem{
			{ID: "dashboard", Label: "Dashboard", Route: "/dashboard", Permission: PermDashboardView},
			{ID: "employees", Label: "Employees", Route: "/employees", Permission: PermEmployeesView},
			{ID: "leave", Label: "Leave", Route: "/leave", Permission: PermLeaveRequest},
			{ID: "payroll", Label: "Payroll", Route: "/payroll", Permission: PermPayrollView},
			{ID: "reports", Label: "Reports", Route: "/reports", Permission: PermReportsView},
			{ID: "users", Label: "Users", Route: "/users", Permission: PermUsersView},
			{ID: "settings", Label: "Settings", Route: "/settings", Permission: PermSettingsView},
			{ID: "audit", Label: "Audit log", Route: "/audit", Permission: PermAuditView},
		},
		Assignments: map[string][]string{
			"admin":      {"admin", "hr_manager", "user", "viewer"},
			"hr_manager": {"user", "viewer"},
		},
	}
}
