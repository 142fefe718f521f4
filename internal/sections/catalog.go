// Package sections holds the fixed catalog of deck sections: the retrieval
// queries run for each one, the prompt its flow is built from and the name of
// that flow.
package sections

import (
	"fmt"
	"strings"
)

// Section identifiers.
const (
	ExecutiveSummary  = "executive_summary"
	CompanyOverview   = "company_overview"
	FinancialOverview = "financial_overview"
)

// Section is an immutable catalog entry.
type Section struct {
	ID       string
	Title    string
	FlowName string
	Queries  []string
	Prompt   string
}

// Description is the human-readable text attached to the section's flow.
func (s Section) Description() string {
	return "Performs the " + s.Title + " of a company"
}

func (s Section) clone() Section {
	s.Queries = append([]string(nil), s.Queries...)
	return s
}

func (s Section) validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("section id is empty")
	}
	if strings.TrimSpace(s.FlowName) == "" {
		return fmt.Errorf("section %s: flow name is empty", s.ID)
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("section %s: no retrieval queries", s.ID)
	}
	for i, q := range s.Queries {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("section %s: query %d is empty", s.ID, i)
		}
	}
	if !strings.Contains(s.Prompt, InputPlaceholder) {
		return fmt.Errorf("section %s: prompt lacks %s placeholder", s.ID, InputPlaceholder)
	}
	return nil
}

// Catalog is an ordered, read-only set of sections.
type Catalog struct {
	order []string
	byID  map[string]Section
}

// NewCatalog validates secs and keeps them in the given order.
func NewCatalog(secs ...Section) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Section, len(secs))}
	flows := make(map[string]string, len(secs))
	for _, s := range secs {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate section id %s", s.ID)
		}
		if other, dup := flows[s.FlowName]; dup {
			return nil, fmt.Errorf("sections %s and %s share flow %s", other, s.ID, s.FlowName)
		}
		flows[s.FlowName] = s.ID
		c.order = append(c.order, s.ID)
		c.byID[s.ID] = s.clone()
	}
	return c, nil
}

// Get returns a copy of the section with the given id.
func (c *Catalog) Get(id string) (Section, bool) {
	s, ok := c.byID[id]
	if !ok {
		return Section{}, false
	}
	return s.clone(), true
}

// All returns copies of every section in catalog order.
func (c *Catalog) All() []Section {
	out := make([]Section, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].clone())
	}
	return out
}

// IDs returns section identifiers in catalog order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}

// Len returns the number of sections.
func (c *Catalog) Len() int {
	return len(c.order)
}

var defaultSections = []Section{
	{
		ID:       ExecutiveSummary,
		Title:    "Executive Summary",
		FlowName: "executive_summary_analysis_flow",
		Queries: []string{
			"target company name legal structure ownership",
			"transaction value purchase price payment terms",
			"revenue EBITDA margin growth rate market share",
			"strategic rationale synergy opportunities growth potential",
			"key risks mitigation strategies critical challenges",
		},
		Prompt: executiveSummaryPrompt,
	},
	{
		ID:       CompanyOverview,
		Title:    "Company Overview",
		FlowName: "company_overview_analysis_flow",
		Queries: []string{
			"company history founding year major milestones acquisitions",
			"company business model revenue streams value proposition core capabilities",
			"product portfolio service offerings key features competitive advantages pricing",
			"target market customer segments market share key clients customer relationships",
			"operational footprint manufacturing facilities distribution network technology infrastructure",
			"management team organizational structure key executives background experience",
			"industry position market leadership competitive landscape barriers to entry",
			"patents intellectual property proprietary technology research development innovation",
		},
		Prompt: companyOverviewPrompt,
	},
	{
		ID:       FinancialOverview,
		Title:    "Financial Overview",
		FlowName: "financial_overview_analysis_flow",
		Queries: []string{
			"revenue growth rate profit margins EBITDA net income trends",
			"balance sheet assets liabilities equity working capital ratios",
			"cash flow operating investing financing free cash flow metrics",
			"operating metrics KPIs unit economics customer metrics",
			"financial forecasts projections growth assumptions guidance",
			"capital structure debt equity leverage ratios financing",
			"working capital inventory receivables payables cash conversion cycle",
			"historical financial performance quarterly annual trends seasonality",
		},
		Prompt: financialOverviewPrompt,
	},
}

// Default returns the three-section investment committee catalog.
func Default() *Catalog {
	c, err := NewCatalog(defaultSections...)
	if err != nil {
		panic(fmt.Sprintf("default section catalog: %v", err))
	}
	return c
}
