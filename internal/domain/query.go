package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Page selects one window of a listing. A nil Page or any non-positive field disables paging.
type Page struct {
	Number int `json:"number"`
	Size   int `json:"size"`
}

func (p *Page) Enabled() bool {
	return p != nil && p.Number >= 1 && p.Size > 0
}

// Window returns the [start, end) bounds of the page within total items.
// Without paging it spans all items; a page past the end is the empty window at total.
func (p *Page) Window(total int) (start, end int) {
	if !p.Enabled() {
		return 0, total
	}
	// Compare before multiplying: (Number-1)*Size overflows for huge page numbers.
	if p.pastEnd(total) {
		return total, total
	}
	start = (p.Number - 1) * p.Size
	return start, start + min(p.Size, total-start)
}

func (p *Page) pastEnd(total int) bool {
	return p.Number-1 > total/p.Size
}

// ProjectFilter holds case-insensitive substring patterns; empty fields are not applied.
type ProjectFilter struct {
	Name            string `json:"name,omitempty"`
	Description     string `json:"description,omitempty"`
	AuthorFirstName string `json:"author_first_name,omitempty"`
	AuthorLastName  string `json:"author_last_name,omitempty"`
	TeamName        string `json:"team_name,omitempty"`
}

func (f *ProjectFilter) Empty() bool {
	return f == nil || (f.Name == "" && f.Description == "" && f.AuthorFirstName == "" &&
		f.AuthorLastName == "" && f.TeamName == "")
}

type SortProperty string

const (
	SortByName            SortProperty = "Name"
	SortByDescription     SortProperty = "Description"
	SortByDeadline        SortProperty = "Deadline"
	SortByCreatedAt       SortProperty = "CreatedAt"
	SortByTasksCount      SortProperty = "TasksCount"
	SortByAuthorFirstName SortProperty = "AuthorFirstName"
	SortByAuthorLastName  SortProperty = "AuthorLastName"
	SortByTeamName        SortProperty = "TeamName"
)

var sortProperties = []SortProperty{
	SortByName, SortByDescription, SortByDeadline, SortByCreatedAt,
	SortByTasksCount, SortByAuthorFirstName, SortByAuthorLastName, SortByTeamName,
}

// ParseSortProperty matches case-insensitively; anything unknown becomes SortByName.
func ParseSortProperty(v string) SortProperty {
	for _, p := range sortProperties {
		if strings.EqualFold(string(p), strings.TrimSpace(v)) {
			return p
		}
	}
	return SortByName
}

type SortOrder string

const (
	Ascending  SortOrder = "Ascending"
	Descending SortOrder = "Descending"
)

func ParseSortOrder(v string) SortOrder {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "descending", "desc":
		return Descending
	}
	return Ascending
}

type ProjectSort struct {
	Property SortProperty `json:"property"`
	Order    SortOrder    `json:"order"`
}

// Normalize resolves the effective key and direction. Both store adapters sort through it.
func (s *ProjectSort) Normalize() (SortProperty, bool) {
	if s == nil {
		return SortByName, false
	}
	return ParseSortProperty(string(s.Property)), ParseSortOrder(string(s.Order)) == Descending
}

type ProjectQuery struct {
	Page   *Page          `json:"page,omitempty"`
	Filter *ProjectFilter `json:"filter,omitempty"`
	Sort   *ProjectSort   `json:"sort,omitempty"`
}

// Selectors narrow entity lookups. A nil id slice is unconstrained; an empty one matches nothing.
type ProjectSelector struct {
	IDs       []int64
	AuthorIDs []int64
}

type UserOrder int

const (
	UsersByID UserOrder = iota
	UsersByFirstName
	UsersByRegisteredDesc
)

type UserSelector struct {
	IDs        []int64
	TeamIDs    []int64
	HasTeam    bool
	BornBefore int
	Order      UserOrder
}

type TaskSelector struct {
	ProjectIDs   []int64
	PerformerIDs []int64
}

// ContainsFold reports whether substr occurs in s ignoring case.
// The sqlite contains_fold function is registered with this exact implementation.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// TextLen counts code points.
func TextLen(s string) int {
	return utf8.RuneCountInString(s)
}

func StartsUpper(s string) bool {
	r, size := utf8.DecodeRuneInString(s)
	return size > 0 && unicode.IsUpper(r)
}
