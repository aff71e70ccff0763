package domain

// Health reports readiness of the pipeline collaborators.
type Health struct {
	Sources bool     `json:"sources"`
	Model   bool     `json:"model"`
	Store   bool     `json:"store"`
	Healthy bool     `json:"healthy"`
	Details []string `json:"details"`
}

// Statistics is the process-level counters snapshot.
type Statistics struct {
	TotalArticlesProcessed int64         `json:"totalArticlesProcessed"`
	SourcesCount           int           `json:"sourcesCount"`
	GroupsCount            int           `json:"groupsCount"`
	Initialized            bool          `json:"initialized"`
	Store                  *ArticleStats `json:"store,omitempty"`
}

// Dispatch describes what a notification call did with a batch of results.
type Dispatch struct {
	// Attempted lists the URLs of results handed to at least one notification group.
	Attempted []string
	// Delivered and Failed hold notification group ids.
	Delivered []string
	Failed    []string
	// Dropped counts results no group received.
	Dropped int
}

// Merge folds other into d.
func (d *Dispatch) Merge(other Dispatch) {
	d.Attempted = append(d.Attempted, other.Attempted...)
	d.Delivered = append(d.Delivered, other.Delivered...)
	d.Failed = append(d.Failed, other.Failed...)
	d.Dropped += other.Dropped
}
