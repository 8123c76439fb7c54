package services

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/Preyoshi04/MockWise/internal/cache"
	"github.com/Preyoshi04/MockWise/internal/models"
	mongorepo "github.com/Preyoshi04/MockWise/internal/repositories/mongo"
	pgrepo "github.com/Preyoshi04/MockWise/internal/repositories/postgres"
	"github.com/Preyoshi04/MockWise/internal/utils"
)

const (
	communityWindow   = 100
	profileWindow     = 500
	communityCacheKey = "stats:community"
	communityCacheTTL = 60 * time.Second

	heatmapSize     = 6
	recentSize      = 5
	defaultTopStack = "Next.js"
)

type StackCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type CommunityStats struct {
	AvgScore          int                      `json:"avgScore"`
	TotalInterviews   int                      `json:"totalInterviews"`
	TopStack          string                   `json:"topStack"`
	ScoreDistribution [5]int                   `json:"scoreDistribution"`
	SkillHeatmap      []StackCount             `json:"skillHeatmap"`
	RecentActivity    []models.InterviewResult `json:"recentActivity"`
}

type ProfileSummary struct {
	User            *models.User `json:"user"`
	DisplayName     string       `json:"displayName"`
	InterviewCount  int          `json:"interviewCount"`
	HighestScore    int          `json:"highestScore"`
	PendingCount    int          `json:"pendingCount"`
	MemberSinceYear int          `json:"memberSinceYear,omitempty"`
}

type StatsService interface {
	Community(ctx context.Context) (*CommunityStats, error)
	Profile(ctx context.Context, userID string) (*ProfileSummary, error)
}

type statsService struct {
	interviews mongorepo.InterviewRepository
	users      pgrepo.UserRepository
	cache      cache.Cache
}

// NewStatsService builds the dashboard aggregates. c may be nil.
func NewStatsService(interviews mongorepo.InterviewRepository, users pgrepo.UserRepository, c cache.Cache) StatsService {
	return &statsService{interviews: interviews, users: users, cache: c}
}

func (s *statsService) Community(ctx context.Context) (*CommunityStats, error) {
	const op = "StatsService.Community"

	stats, err := cache.Remember(ctx, s.cache, communityCacheKey, communityCacheTTL, func(ctx context.Context) (CommunityStats, error) {
		rows, err := s.interviews.ListRecent(ctx, communityWindow)
		if err != nil {
			return CommunityStats{}, err
		}
		return BuildCommunityStats(rows), nil
	})
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to compute community stats", err)
	}
	return &stats, nil
}

// BuildCommunityStats aggregates rows (newest first). Score figures only use
// evaluated results; a pending placeholder has no real score.
func BuildCommunityStats(rows []models.InterviewResult) CommunityStats {
	out := CommunityStats{
		TopStack:       defaultTopStack,
		SkillHeatmap:   []StackCount{},
		RecentActivity: []models.InterviewResult{},
	}
	if len(rows) == 0 {
		return out
	}
	out.TotalInterviews = len(rows)

	total, scored := 0, 0
	counts := map[string]int{}
	order := make([]string, 0)
	for _, r := range rows {
		stack := r.TechStack
		if stack == "" {
			stack = models.DefaultTechStack
		}
		if _, seen := counts[stack]; !seen {
			order = append(order, stack)
		}
		counts[stack]++

		if r.Status == models.StatusPending {
			continue
		}
		score := ClampScore(r.Score)
		total += score
		scored++
		out.ScoreDistribution[min(score/20, 4)]++
	}
	if scored > 0 {
		out.AvgScore = int(math.Round(float64(total) / float64(scored)))
	}

	heat := make([]StackCount, 0, len(order))
	for _, name := range order {
		heat = append(heat, StackCount{Name: name, Count: counts[name]})
	}
	sort.SliceStable(heat, func(i, j int) bool { return heat[i].Count > heat[j].Count })
	if len(heat) > heatmapSize {
		heat = heat[:heatmapSize]
	}
	out.SkillHeatmap = heat
	if len(heat) > 0 {
		out.TopStack = heat[0].Name
	}

	n := min(recentSize, len(rows))
	out.RecentActivity = append(out.RecentActivity, rows[:n]...)
	return out
}

func (s *statsService) Profile(ctx context.Context, userID string) (*ProfileSummary, error) {
	const op = "StatsService.Profile"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "user not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load user", err)
	}

	rows, err := s.interviews.ListByUser(ctx, userID, profileWindow)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list interviews", err)
	}

	out := &ProfileSummary{
		User:           u,
		DisplayName:    u.Name,
		InterviewCount: len(rows),
	}
	if out.DisplayName == "" {
		out.DisplayName = "Developer"
	}
	if !u.CreatedAt.IsZero() {
		out.MemberSinceYear = u.CreatedAt.Year()
	}
	for _, r := range rows {
		if r.Status == models.StatusPending {
			out.PendingCount++
			continue
		}
		out.HighestScore = max(out.HighestScore, ClampScore(r.Score))
	}
	return out, nil
}
