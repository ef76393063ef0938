package browser

// Wire types for the driver protocol. The driver is a separate automation
// binary that speaks newline-delimited JSON on stdin/stdout: one request per
// line in, one correlated response per line out. Responses may arrive out of
// order; the ID ties them back.

const (
	opNewPage       = "new_page"
	opNavigate      = "navigate"
	opWaitIndicator = "wait_indicator"
	opClosePage     = "close_page"
	opShutdown      = "shutdown"
)

type driverRequest struct {
	ID   uint64 `json:"id"`
	Op   string `json:"op"`
	Page string `json:"page,omitempty"`
	URL  string `json:"url,omitempty"`

	SuccessSelector string `json:"success_selector,omitempty"`
	ErrorSelector   string `json:"error_selector,omitempty"`
	TimeoutMS       int64  `json:"timeout_ms,omitempty"`
}

type driverResponse struct {
	ID  uint64 `json:"id"`
	OK  bool   `json:"ok"`
	Err string `json:"error,omitempty"`

	Page      string `json:"page,omitempty"`
	Status    int    `json:"status,omitempty"`
	Indicator string `json:"indicator,omitempty"`
}
