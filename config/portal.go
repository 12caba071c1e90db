package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PortalProfile holds every URL, selector and script the retrieval workflow
// drives on the reseller portal. Values in the YAML file override defaults
// field by field.
type PortalProfile struct {
	HomeURL       string   `yaml:"home_url"`
	FlowsURL      string   `yaml:"flows_url"`
	UsernameField string   `yaml:"username_field"`
	PasswordField string   `yaml:"password_field"`
	LoginButton   string   `yaml:"login_button"`
	FlowsLink     string   `yaml:"flows_link"`
	FallbackTable string   `yaml:"fallback_table"`
	SearchQuery   string   `yaml:"search_query"`
	NoFilesURL    string   `yaml:"no_files_url"`
	NoFilesText   string   `yaml:"no_files_text"`
	FaultMarkers  []string `yaml:"fault_markers"`

	Measures map[string]*MeasureProfile `yaml:"measures"`
}

// MeasureProfile is the tab-specific part of the portal layout.
type MeasureProfile struct {
	Tab               string `yaml:"tab"`
	FieldPrefix       string `yaml:"field_prefix"`
	AvailableTable    string `yaml:"available_table"`
	AvailableTrigger  string `yaml:"available_trigger"`
	SearchField       string `yaml:"search_field"`
	DateFromField     string `yaml:"date_from_field"`
	DateToField       string `yaml:"date_to_field"`
	SearchButton      string `yaml:"search_button"`
	DownloadedTable   string `yaml:"downloaded_table"`
	DownloadedTrigger string `yaml:"downloaded_trigger"`
}

func DefaultPortalProfile() *PortalProfile {
	return &PortalProfile{
		HomeURL:       "https://resellersecotrade.enerp.biz/reseller.php",
		FlowsURL:      "https://resellersecotrade.enerp.biz/reseller.php?module=reseller&page=flussi",
		UsernameField: "#codcliente",
		PasswordField: "#password",
		LoginButton:   "#button",
		FlowsLink:     "a:has-text('FLUSSI')",
		FallbackTable: "table.tablesorter",
		SearchQuery:   "xml",
		NoFilesURL:    "downloadFlussi",
		NoFilesText:   "Nessun file presente",
		FaultMarkers:  []string{"Server Error in", "Exception Details"},
		Measures: map[string]*MeasureProfile{
			"Power": {
				Tab:               "span:has-text('Energia')",
				FieldPrefix:       "td1",
				AvailableTable:    "#pageContainer table#listaStati",
				AvailableTrigger:  "scarica('/');",
				SearchField:       "#cercaFileScaricati",
				DateFromField:     "#dataFileDaScaricati",
				DateToField:       "#dataFileAScaricati",
				SearchButton:      "//input[@type='button' and @value='Cerca' and @onclick='cercaScaricati();']",
				DownloadedTable:   "#pageContainerScaricati table.tablesorter",
				DownloadedTrigger: "scaricaScaricati('/scaricati/');",
			},
			"Gas": {
				Tab:               "span:has-text('GAS')",
				FieldPrefix:       "td2",
				AvailableTable:    "#pageContainerGas table#listaStati",
				AvailableTrigger:  "scaricaGas('/');",
				SearchField:       "#cercaFileScaricatiGas",
				DateFromField:     "#dataFileDaScaricatiGas",
				DateToField:       "#dataFileAScaricatiGas",
				SearchButton:      "//input[@type='button' and @value='Cerca' and @onclick='cercaScaricatiGas();']",
				DownloadedTable:   "#pageContainerScaricatiGas table.tablesorter",
				DownloadedTrigger: "scaricaScaricatiGas('/scaricati/');",
			},
		},
	}
}

// LoadPortalProfile reads path over the defaults. A missing file is not an error.
func LoadPortalProfile(path string) (*PortalProfile, error) {
	profile := DefaultPortalProfile()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return profile, nil
		}
		return nil, err
	}

	var override PortalProfile
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	profile.merge(&override)
	return profile, nil
}

// Measure returns the tab layout for a measure type name.
func (p *PortalProfile) Measure(name string) (*MeasureProfile, error) {
	mp, ok := p.Measures[name]
	if !ok {
		return nil, fmt.Errorf("no portal layout for measure %q", name)
	}
	return mp, nil
}

func (p *PortalProfile) merge(o *PortalProfile) {
	setIf(&p.HomeURL, o.HomeURL)
	setIf(&p.FlowsURL, o.FlowsURL)
	setIf(&p.UsernameField, o.UsernameField)
	setIf(&p.PasswordField, o.PasswordField)
	setIf(&p.LoginButton, o.LoginButton)
	setIf(&p.FlowsLink, o.FlowsLink)
	setIf(&p.FallbackTable, o.FallbackTable)
	setIf(&p.SearchQuery, o.SearchQuery)
	setIf(&p.NoFilesURL, o.NoFilesURL)
	setIf(&p.NoFilesText, o.NoFilesText)
	if len(o.FaultMarkers) > 0 {
		p.FaultMarkers = o.FaultMarkers
	}

	for name, om := range o.Measures {
		if om == nil {
			continue
		}
		m, ok := p.Measures[name]
		if !ok {
			p.Measures[name] = om
			continue
		}
		setIf(&m.Tab, om.Tab)
		setIf(&m.FieldPrefix, om.FieldPrefix)
		setIf(&m.AvailableTable, om.AvailableTable)
		setIf(&m.AvailableTrigger, om.AvailableTrigger)
		setIf(&m.SearchField, om.SearchField)
		setIf(&m.DateFromField, om.DateFromField)
		setIf(&m.DateToField, om.DateToField)
		setIf(&m.SearchButton, om.SearchButton)
		setIf(&m.DownloadedTable, om.DownloadedTable)
		setIf(&m.DownloadedTrigger, om.DownloadedTrigger)
	}
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
