package studienet

// Portal holds the locations and selectors the scraper depends on, they are only known
// by convention so they are kept configurable.
type Portal struct {
	HomeUrl       string `json:"home_url"`
	AllClassesUrl string `json:"all_classes_url"`

	UsernameSelector string `json:"username_selector"`
	PasswordSelector string `json:"password_selector"`
	LogonSelector    string `json:"logon_selector"`

	// the table holding one row per class, rows are found under `<selector> tbody tr`
	ClassTableSelector string `json:"class_table_selector"`

	// appended to a class url to get the page listing its materials
	MaterialsSubpath string `json:"materials_subpath"`
	// every match is one group of materials, its `tr` elements are the materials
	MaterialGroupSelector string `json:"material_group_selector"`
	// the element inside a material row that holds the download anchor
	MaterialCellSelector string `json:"material_cell_selector"`
}

func DefaultPortal() Portal {
	return Portal{
		HomeUrl:       "https://studienet.via.dk",
		AllClassesUrl: "https://studienet.via.dk/sites/uddannelse/ict/horsens/Pages/All_classes.aspx",

		UsernameSelector: "#login",
		PasswordSelector: "#passwd",
		LogonSelector:    "#nsg-x1-logon-button",

		ClassTableSelector: "#ctl00_ctl41_g_7e08e0cd_4020_4b4b_b9bd_1eb7c01e95f6_ctl00_gv1",

		MaterialsSubpath:      "Session Material",
		MaterialGroupSelector: "#scriptWPQ2 table [id^='tbod']",
		MaterialCellSelector:  "td .ms-vb-title",
	}
}
