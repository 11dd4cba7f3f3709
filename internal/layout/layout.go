package layout

import (
	"fmt"
	"time"
)

// Anchor ids addressed by callbacks, in layout order
const (
	AnchorDatePicker            = "date-picker"
	AnchorByWeek                = "by-week"
	AnchorCovidCases            = "covid-cases"
	AnchorCovidDeaths           = "covid-deaths"
	AnchorByThousandCasesDeaths = "by_thousand_cases_deaths"
	AnchorCovidCasesMonthly     = "covid-cases-monthly"
	AnchorCovidDeathsMonthly    = "covid-deaths-monthly"
	AnchorCompareCasesOptions   = "compare-cases-options"
	AnchorByThousand            = "by_thousand"
	AnchorCompareCovid          = "compare-covid"
	AnchorCompareVaccinations   = "compare-vaccinations"
	AnchorBoostersGiven         = "boosters-given"
	AnchorCountryTestingDaily   = "country-testing-daily"
	AnchorCompareVariants       = "compare-variants"
	AnchorVariantProportions    = "variant-proportions"
)

// Widget keys accepted by WidgetsFromMap
const (
	KeyCountryDropdown          = "country_dropdown"
	KeyCountryDropdown1         = "country_dropdown1"
	KeyCountryDropdownMultiple  = "country_dropdown_multiple"
	KeyCountryDropdownMultiple1 = "country_dropdown_multiple1"
	KeyVariantsDropdown         = "variants_dropdown"
)

// Date picker bounds
var MinDate = time.Date(2020, 1, 22, 0, 0, 0, 0, time.UTC)

// DefaultStartDate is the initial start of the date range
var DefaultStartDate = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

// DisplayFormat is the date picker display format, day/month/year
const DisplayFormat = "D/M/Y"

// Title of the dashboard
const Title = "COVID-19 Visualisation Dashboard"

const widgetAttr = "data-widget"

// CheckedValue is the value of the single option of the by-week and per 100,000 checklists
const CheckedValue = "true"

// AnchorIDs returns the ids callbacks read from or write to, in layout order
func AnchorIDs() []string {
	return []string{
		AnchorDatePicker,
		AnchorByWeek,
		AnchorCovidCases,
		AnchorCovidDeaths,
		AnchorByThousandCasesDeaths,
		AnchorCovidCasesMonthly,
		AnchorCovidDeathsMonthly,
		AnchorCompareCasesOptions,
		AnchorByThousand,
		AnchorCompareCovid,
		AnchorCompareVaccinations,
		AnchorBoostersGiven,
		AnchorCountryTestingDaily,
		AnchorCompareVariants,
		AnchorVariantProportions,
	}
}

// Widgets are the externally built controls spliced into the tree. A nil field, or a
// nil control pointer, leaves its injection point empty.
type Widgets struct {
	CountryDropdown          Control
	CountryDropdown1         Control
	CountryDropdownMultiple  Control
	CountryDropdownMultiple1 Control
	VariantsDropdown         Control
}

// WidgetsFromMap builds Widgets from the keyed form. Unknown keys are an error.
func WidgetsFromMap(m map[string]Control) (Widgets, error) {
	var w Widgets
	for key, c := range m {
		switch key {
		case KeyCountryDropdown:
			w.CountryDropdown = c
		case KeyCountryDropdown1:
			w.CountryDropdown1 = c
		case KeyCountryDropdownMultiple:
			w.CountryDropdownMultiple = c
		case KeyCountryDropdownMultiple1:
			w.CountryDropdownMultiple1 = c
		case KeyVariantsDropdown:
			w.VariantsDropdown = c
		default:
			return Widgets{}, fmt.Errorf("unknown widget key %q", key)
		}
	}
	return w, nil
}

// New builds the layout for the current day
func New(w Widgets) *Node {
	return Build(w, time.Now())
}

// Build returns the page tree: navbar, header with the date controls, the five cards
// and the footer. The only input besides the widgets is today, which bounds the date
// picker.
func Build(w Widgets, today time.Time) *Node {
	y, m, d := today.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	return &Node{
		Kind: KindPage,
		Children: []*Node{
			navbar(),
			{
				Kind:  KindCol,
				Class: "container-fluid px-4",
				Children: []*Node{
					header(day),
					generalCard(w),
					comparisonCard(w),
					vaccinationCard(w),
					testingCard(w),
					variantsCard(w),
				},
			},
			footer(),
		},
	}
}

func navbar() *Node {
	items := []struct{ text, href string }{
		{"General", "#general"},
		{"Comparison", "#comparison"},
		{"Vaccinations", "#vaccinations"},
		{"Testing", "#testing"},
		{"Variants", "#variants"},
	}

	nav := &Node{Kind: KindNavbar, Class: "navbar navbar-expand-lg navbar-dark bg-dark mb-4 px-3"}
	nav.Children = append(nav.Children, &Node{
		Kind: KindBrand,
		Text: Title,
		Children: []*Node{
			{Kind: KindImage, Class: "me-2", Attrs: map[string]string{"src": "/static/covid.svg", "alt": "", "height": "30"}},
		},
	})
	for _, it := range items {
		nav.Children = append(nav.Children, &Node{Kind: KindNavItem, Text: it.text, Attrs: map[string]string{"href": it.href}})
	}
	return nav
}

func header(today time.Time) *Node {
	return row("align-items-center mb-3",
		col("", heading("1", "COVID-19 Dashboard", "")),
		col("text-end",
			control(&DatePickerRange{
				ID:            AnchorDatePicker,
				Min:           MinDate,
				Max:           today,
				Start:         DefaultStartDate,
				End:           today,
				DisplayFormat: DisplayFormat,
			}),
			control(&Checklist{
				ID:      AnchorByWeek,
				Options: []Option{{Label: "By Week", Value: CheckedValue}},
				Switch:  true,
			}),
		),
	)
}

// card wraps a titled section. id doubles as the navbar target.
func card(id, title string, children ...*Node) *Node {
	body := el(KindCol, "card-body", append([]*Node{heading("3", title, "card-title text-center")}, children...)...)
	return &Node{
		Kind:     KindCard,
		ID:       id,
		Class:    "card mt-2 mb-4 shadow",
		Style:    map[string]string{"border-radius": "10px"},
		Children: []*Node{body},
	}
}

// widget is the injection point of an externally built control
func widget(key string, c Control) *Node {
	n := &Node{
		Kind:  KindWidget,
		Class: "d-flex justify-content-center mb-3",
		Attrs: map[string]string{widgetAttr: key},
	}
	if !absent(c) {
		n.Children = []*Node{control(c)}
	}
	return n
}

func perHundredK(id string) *Node {
	return control(&Checklist{
		ID:      id,
		Options: []Option{{Label: "Per 100,000", Value: CheckedValue}},
		Switch:  true,
	})
}

func generalCard(w Widgets) *Node {
	return card("general", "General Statistics",
		widget(KeyCountryDropdown, w.CountryDropdown),
		row("",
			col("col-lg-6", slot(AnchorCovidCases)),
			col("col-lg-6", slot(AnchorCovidDeaths)),
		),
		row("justify-content-center mt-3", col("col-auto", perHundredK(AnchorByThousandCasesDeaths))),
		row("",
			col("col-lg-6", slot(AnchorCovidCasesMonthly)),
			col("col-lg-6", slot(AnchorCovidDeathsMonthly)),
		),
	)
}

func comparisonCard(w Widgets) *Node {
	return card("comparison", "Compare Countries",
		widget(KeyCountryDropdownMultiple, w.CountryDropdownMultiple),
		row("justify-content-center",
			col("col-auto", control(&RadioItems{
				ID: AnchorCompareCasesOptions,
				Options: []Option{
					{Label: "New Cases", Value: "1"},
					{Label: "Confirmed Cases", Value: "2"},
					{Label: "New Deaths", Value: "3"},
					{Label: "Deaths", Value: "4"},
				},
				Value:  "1",
				Inline: true,
			})),
			col("col-auto", perHundredK(AnchorByThousand)),
		),
		row("", col("", slot(AnchorCompareCovid))),
	)
}

func vaccinationCard(w Widgets) *Node {
	return card("vaccinations", "Compare Vaccinations",
		widget(KeyCountryDropdownMultiple1, w.CountryDropdownMultiple1),
		row("",
			col("col-lg-6", slot(AnchorCompareVaccinations)),
			col("col-lg-6", slot(AnchorBoostersGiven)),
		),
	)
}

func testingCard(w Widgets) *Node {
	return card("testing", "Testing",
		widget(KeyCountryDropdown1, w.CountryDropdown1),
		row("", col("", slot(AnchorCountryTestingDaily))),
	)
}

func variantsCard(w Widgets) *Node {
	return card("variants", "Variants",
		widget(KeyVariantsDropdown, w.VariantsDropdown),
		row("",
			col("col-lg-8", slot(AnchorCompareVariants)),
			col("col-lg-4", slot(AnchorVariantProportions)),
		),
	)
}

func footer() *Node {
	return &Node{
		Kind:  KindFooter,
		Class: "footer text-center text-muted py-3 mt-4 border-top",
		Children: []*Node{
			text("Data sources: ", "d-inline"),
			link("Johns Hopkins CSSE", "https://github.com/CSSEGISandData/COVID-19"),
			text(", ", "d-inline"),
			link("Our World in Data", "https://github.com/owid/covid-19-data"),
			text(" and ", "d-inline"),
			link("UN World Population Prospects", "https://population.un.org/wpp/"),
		},
	}
}
