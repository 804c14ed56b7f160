package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskboard/internal/domain"
)

const projectFrom = ` FROM projects p
LEFT JOIN users a ON a.id = p.author_id
LEFT JOIN teams t ON t.id = p.team_id
LEFT JOIN (SELECT project_id, COUNT(*) AS n FROM tasks GROUP BY project_id) tc ON tc.project_id = p.id`

var sortColumns = map[domain.SortProperty]string{
	domain.SortByName:            "p.name",
	domain.SortByDescription:     "p.description",
	domain.SortByDeadline:        "p.deadline",
	domain.SortByCreatedAt:       "p.created_at",
	domain.SortByTasksCount:      "COALESCE(tc.n, 0)",
	domain.SortByAuthorFirstName: "COALESCE(a.first_name, '')",
	domain.SortByAuthorLastName:  "COALESCE(a.last_name, '')",
	domain.SortByTeamName:        "COALESCE(t.name, '')",
}

type where struct {
	clauses []string
	args    []any
	none    bool
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

// in constrains col to ids. A nil slice is ignored, an empty one makes the query match nothing.
func (w *where) in(col string, ids []int64) {
	if ids == nil {
		return
	}
	clause, args, ok := inClause(col, ids)
	if !ok {
		w.none = true
		return
	}
	w.add(clause, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func projectWhere(f *domain.ProjectFilter) *where {
	w := &where{}
	if f.Empty() {
		return w
	}
	fields := []struct{ col, pattern string }{
		{"p.name", f.Name},
		{"p.description", f.Description},
		{"a.first_name", f.AuthorFirstName},
		{"a.last_name", f.AuthorLastName},
		{"t.name", f.TeamName},
	}
	for _, fl := range fields {
		if fl.pattern != "" {
			w.add("contains_fold("+fl.col+", ?) = 1", fl.pattern)
		}
	}
	return w
}

// QueryProjects filters, sorts and pages projects in SQL. The count and the page
// are read in one read-only transaction so TotalCount matches the rows returned.
func (r Repo) QueryProjects(ctx context.Context, q domain.ProjectQuery) ([]domain.Project, int, error) {
	w := projectWhere(q.Filter)
	prop, desc := q.Sort.Normalize()
	dir := "ASC"
	if desc {
		dir = "DESC"
	}

	tx, err := r.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*)`+projectFrom+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	query := `SELECT ` + projectColumns + projectFrom + w.String() +
		` ORDER BY ` + sortColumns[prop] + ` ` + dir + `, p.id ASC`
	args := append([]any{}, w.args...)
	if q.Page.Enabled() {
		start, end := q.Page.Window(total)
		if start == end {
			return []domain.Project{}, total, tx.Commit()
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, end-start, start)
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query projects: %w", err)
	}
	items, err := collect(rows, scanProject)
	if err != nil {
		return nil, 0, err
	}
	return items, total, tx.Commit()
}

func (r Repo) Projects(ctx context.Context, sel domain.ProjectSelector) ([]domain.Project, error) {
	w := &where{}
	w.in("p.id", sel.IDs)
	w.in("p.author_id", sel.AuthorIDs)
	if w.none {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects p`+w.String()+` ORDER BY p.id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return collect(rows, scanProject)
}

// LatestProject returns the project authored by authorID with the greatest CreatedAt, or nil.
func (r Repo) LatestProject(ctx context.Context, authorID int64) (*domain.Project, error) {
	p, err := scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects p
WHERE p.author_id = ? ORDER BY p.created_at DESC, p.id ASC LIMIT 1`, authorID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest project: %w", err)
	}
	return &p, nil
}

var userOrders = map[domain.UserOrder]string{
	domain.UsersByID:             "u.id ASC",
	domain.UsersByFirstName:      "u.first_name ASC, u.id ASC",
	domain.UsersByRegisteredDesc: "u.registered_at DESC, u.id ASC",
}

func (r Repo) Users(ctx context.Context, sel domain.UserSelector) ([]domain.User, error) {
	w := &where{}
	w.in("u.id", sel.IDs)
	w.in("u.team_id", sel.TeamIDs)
	if w.none {
		return nil, nil
	}
	if sel.HasTeam {
		w.add("u.team_id IS NOT NULL")
	}
	if sel.BornBefore != 0 {
		// birth_day holds a calendar date, so this is BirthDay.Year() < BornBefore.
		w.add("u.birth_day < ?", formatTime(time.Date(sel.BornBefore, time.January, 1, 0, 0, 0, 0, time.UTC)))
	}
	order, ok := userOrders[sel.Order]
	if !ok {
		order = userOrders[domain.UsersByID]
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users u`+w.String()+` ORDER BY `+order, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return collect(rows, scanUser)
}

func (r Repo) Teams(ctx context.Context, ids []int64) ([]domain.Team, error) {
	w := &where{}
	w.in("t.id", ids)
	if w.none {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+teamColumns+` FROM teams t`+w.String()+` ORDER BY t.id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return collect(rows, scanTeam)
}

func (r Repo) Tasks(ctx context.Context, sel domain.TaskSelector) ([]domain.Task, error) {
	w := &where{}
	w.in("k.project_id", sel.ProjectIDs)
	w.in("k.performer_id", sel.PerformerIDs)
	if w.none {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks k`+w.String()+` ORDER BY k.id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collect(rows, scanTask)
}

// TaskCounts returns the number of tasks per project; projects without tasks are omitted.
func (r Repo) TaskCounts(ctx context.Context, projectIDs []int64) (map[int64]int, error) {
	w := &where{}
	w.in("project_id", projectIDs)
	if w.none {
		return map[int64]int{}, nil
	}
	return r.groupCounts(ctx, `SELECT project_id, COUNT(*) FROM tasks`+w.String()+` GROUP BY project_id`, w.args)
}

// MemberCounts returns the number of users per team; empty teams are omitted.
func (r Repo) MemberCounts(ctx context.Context, teamIDs []int64) (map[int64]int, error) {
	w := &where{}
	w.add("team_id IS NOT NULL")
	w.in("team_id", teamIDs)
	if w.none {
		return map[int64]int{}, nil
	}
	return r.groupCounts(ctx, `SELECT team_id, COUNT(*) FROM users`+w.String()+` GROUP BY team_id`, w.args)
}

func (r Repo) groupCounts(ctx context.Context, query string, args []any) (map[int64]int, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("group counts: %w", err)
	}
	defer rows.Close()
	counts := map[int64]int{}
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
