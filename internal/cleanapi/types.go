package cleanapi

// Assets accepted by the report endpoints.
const (
	AssetUSD = "USD"
	AssetTHB = "THB"
)

// Defaults applied by the remote service when a field is omitted.
const (
	DefaultLang       = "th"
	DefaultLimit      = 25
	MinLimit          = 5
	MaxLimit          = 200
	DefaultLimitRows  = 12
	DefaultLimitCols  = 12
	DefaultCleanName  = "CLEAN.csv"
	DefaultReportName = "report_CLEAN.xlsx"
)

// File is an uploaded spreadsheet export.
type File struct {
	Name string
	Data []byte
}

// Credentials is the signup/login body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is the public account record returned by the auth endpoints.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Table is a preview grid.
type Table struct {
	Headers []string `json:"headers"`
	Rows    [][]any  `json:"rows"`
}

// Issue is one validation finding produced by the service.
type Issue struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validation groups errors and warnings for an ETL preview.
type Validation struct {
	ErrorCount   int     `json:"error_count"`
	WarningCount int     `json:"warning_count"`
	Errors       []Issue `json:"errors"`
	Warnings     []Issue `json:"warnings"`
}

// ETLPreview is the /api/preview response.
type ETLPreview struct {
	Summary    map[string]any `json:"summary"`
	Validation Validation     `json:"validation"`
	Preview    struct {
		Raw   Table `json:"raw"`
		Clean Table `json:"clean"`
	} `json:"preview"`
}

// ReportParams are the report transposer parameters.
type ReportParams struct {
	Asset      string
	IncludeBot bool
	Coins      []string
	LimitRows  int
	LimitCols  int
}

// ReportMeta describes the transposed report.
type ReportMeta struct {
	Asset          string   `json:"asset"`
	IncludeBot     bool     `json:"include_bot"`
	TotalCoins     int      `json:"total_coins"`
	SelectedCoins  int      `json:"selected_coins"`
	MissingCoins   []string `json:"missing_coins"`
	Rows           int      `json:"rows"`
	AvailableCoins []string `json:"available_coins"`
}

// ReportPreview is the /api/report/preview response.
type ReportPreview struct {
	Meta  *ReportMeta `json:"meta"`
	Coins struct {
		USD []string `json:"USD"`
		THB []string `json:"THB"`
	} `json:"coins"`
	RawPreview   Table `json:"rawPreview"`
	CleanPreview Table `json:"cleanPreview"`
}

// CoinsFor returns the coin universe the service reported for asset.
func (p *ReportPreview) CoinsFor(asset string) []string {
	if asset == AssetTHB {
		return p.Coins.THB
	}
	return p.Coins.USD
}
