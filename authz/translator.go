package authz

// Application action names partitioned into permission categories. The
// tables are exhaustive: an action missing from all of them is not covered
// by generic authorization and must be handled by resource-specific logic.
// New actions require an explicit category choice here, never a fallback.
var (
	viewActions = []string{
		"view", "show", "index", "search", "favourite", "favourite_delete", "comment", "comment_delete",
		"comments", "comments_timeline", "rate", "tag", "items", "statistics", "tag_suggestions", "preview",
		"runs", "new_object_based_on_existing_one", "samples_table", "matching_models", "matching_data",
	}

	downloadActions = []string{
		"download", "named_download", "launch", "submit_job", "data", "execute", "plot", "explore",
		"visualise", "export_as_xgmml", "download_log", "download_results", "input", "output",
		"download_output", "download_input", "view_result", "compare_versions", "simulate",
	}

	editActions = []string{
		"edit", "new", "create", "update", "new_version", "create_version", "destroy_version",
		"edit_version", "update_version", "new_item", "create_item", "edit_item", "update_item",
		"quick_add", "resolve_link", "describe_ports", "retrieve_nels_sample_metadata",
	}

	deleteActions = []string{
		"delete", "destroy", "destroy_item", "cancel", "destroy_samples_confirm",
	}

	manageActions = []string{
		"manage", "notification", "read_interaction", "write_interaction", "report_problem",
		"storage_report", "select_sample_type", "extraction_status", "extract_samples",
		"confirm_extraction", "cancel_extraction",
	}
)

var actionCategories = buildActionCategories()

func buildActionCategories() map[string]Category {
	m := make(map[string]Category)
	for cat, actions := range map[Category][]string{
		CategoryView:     viewActions,
		CategoryDownload: downloadActions,
		CategoryEdit:     editActions,
		CategoryDelete:   deleteActions,
		CategoryManage:   manageActions,
	} {
		for _, a := range actions {
			m[a] = cat
		}
	}
	return m
}

// Categorize maps an application action name to its permission category.
// Unlisted actions return CategoryNone.
func Categorize(action string) Category {
	return actionCategories[action]
}
