// Package rules is the automation engine behind the rules addon. A rule
// binds a webhook event to conditions over the payload and a list of
// allowlisted actions executed through the Clockify API.
//
//	webhook ──▶ Store.List ──▶ Evaluator.Select ──▶ Executor.Execute
//	               │                 │                     │
//	               ▼                 ▼                     ▼
//	        cached per          conditions +         entry mutations
//	        workspace           expressions          and API calls
//
// Conditions cover the common cases (description, tags, project, billable)
// plus free-form expr programs; action params accept {{dotted.path}}
// placeholders resolved against the payload. The executor runs dry unless
// changes are explicitly enabled.
package rules
