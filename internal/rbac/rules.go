package rbac

const (
	PermSyncRun          = "sync:run"
	PermSyncBatch        = "sync:batch"
	PermMonitoringView   = "monitoring:view"
	PermMonitoringManage = "monitoring:manage"
	PermLMSProbe         = "lms:probe"
)

// Default policy. "operator" runs syncs; "viewer" only watches.
var RolePermissions = map[string][]string{
	"viewer": {
		PermMonitoringView,
	},
	"operator": {
		"sync:*",
		PermLMSProbe,
		PermMonitoringView,
	},
	"admin": {
		"*", // everything
	},
}
