package domain

import "time"

// AuthFlow records how (and whether) the smart-auth resolver succeeded
// for this site, for the planner's reference and for debug logging.
type AuthFlow struct {
	Tier             string    `json:"tier"` // explicit | auto_detect | llm_fallback
	UsernameSelector string    `json:"username_selector,omitempty"`
	PasswordSelector string    `json:"password_selector,omitempty"`
	SubmitSelector   string    `json:"submit_selector,omitempty"`
	PostLoginURL     string    `json:"post_login_url,omitempty"`
	ResolvedAt       time.Time `json:"resolved_at"`
}

// SiteModel is the crawler's sole output: a read-only graph of pages
// and the navigation edges discovered between them.
type SiteModel struct {
	BaseURL         string              `json:"base_url"`
	Pages           []PageModel         `json:"pages"`
	NavigationGraph map[string][]string `json:"navigation_graph"`
	APIEndpoints    []string            `json:"api_endpoints"`
	AuthFlow        *AuthFlow           `json:"auth_flow,omitempty"`
	Metadata        map[string]string   `json:"metadata,omitempty"`
	CrawledAt       time.Time           `json:"crawled_at"`
}

// AddEdge records that toPageID was discovered from fromPageID. The
// graph is directional and may contain cycles; no core algorithm
// assumes acyclicity.
func (s *SiteModel) AddEdge(fromPageID, toPageID string) {
	if s.NavigationGraph == nil {
		s.NavigationGraph = make(map[string][]string)
	}
	for _, existing := range s.NavigationGraph[fromPageID] {
		if existing == toPageID {
			return
		}
	}
	s.NavigationGraph[fromPageID] = append(s.NavigationGraph[fromPageID], toPageID)
}

// PageByID returns the page with the given id, or nil.
func (s *SiteModel) PageByID(pageID string) *PageModel {
	for i := range s.Pages {
		if s.Pages[i].PageID == pageID {
			return &s.Pages[i]
		}
	}
	return nil
}
