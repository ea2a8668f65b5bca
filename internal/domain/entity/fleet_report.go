package entity

// TenantOutcome is the result of migrating one tenant during a fleet run.
type TenantOutcome struct {
	Identity   string `json:"identity"`
	Slug       string `json:"slug"`
	SchemaName string `json:"schemaName"`
	Applied    int    `json:"applied"`
	Skipped    bool   `json:"skipped"`
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
}

// FleetReport is the aggregate result of a fleet migration pass. Tenants are
// processed independently, so the report can mix successes and failures.
type FleetReport struct {
	Outcomes []TenantOutcome `json:"outcomes"`
}

// Failed reports whether any tenant in the run failed.
func (r *FleetReport) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Err != nil {
			return true
		}
	}
	return false
}

// FailedCount returns how many tenants failed during the run.
func (r *FleetReport) FailedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}
