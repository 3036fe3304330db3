package auditor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/strwt/UniclaimRepo-sub001/internal/clients"
	"github.com/strwt/UniclaimRepo-sub001/internal/domain"
)

// Auditor finds conversations whose post is gone ("ghosts") and message
// collections whose conversation is gone (orphans), and cleans them up in
// batches. Per-item failures are reported and never abort the batch.

const (
	scanPageSize     = 200
	healthSampleSize = 5
)

const (
	ReasonMissingPostID    = "missing post id"
	ReasonPostGone         = "Post no longer exists"
	ReasonPermissionDenied = "permission denied checking post"
)

type ConversationScanner interface {
	ListPage(ctx context.Context, afterID string, limit int64) ([]domain.Conversation, error)
	Count(ctx context.Context) (int64, error)
	Sample(ctx context.Context, n int64) ([]domain.Conversation, error)
	Exists(ctx context.Context, convID string) (bool, error)
	Delete(ctx context.Context, convID string) error
}

type MessageScanner interface {
	DistinctConversationIDs(ctx context.Context) ([]string, error)
	IDsByConversation(ctx context.Context, convID string) ([]string, error)
	DeleteConversation(ctx context.Context, convID string) (int64, error)
}

type PostChecker interface {
	CheckPost(ctx context.Context, postID string) (clients.PostCheck, error)
}

// HealthCache holds the latest quick-check snapshot for cheap polling.
type HealthCache interface {
	GetHealthSnapshot(ctx context.Context) (*HealthReport, error)
	SetHealthSnapshot(ctx context.Context, r *HealthReport, ttl time.Duration) error
}

type GhostCandidate struct {
	ConversationID string `json:"conversation_id"`
	PostID         string `json:"post_id,omitempty"`
	Reason         string `json:"reason"`
}

// Forbidden reports whether the candidate was flagged because the post check
// came back permission-denied rather than a definitive not-found. Cleanup
// skips these unless explicitly told otherwise.
func (g GhostCandidate) Forbidden() bool { return g.Reason == ReasonPermissionDenied }

type OrphanCandidate struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Reason         string `json:"reason"`
}

type CleanupReport struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

type HealthReport struct {
	Healthy             bool      `json:"healthy"`
	TotalConversations  int64     `json:"total_conversations"`
	EstimatedGhostCount int64     `json:"estimated_ghost_count"`
	Issues              []string  `json:"issues,omitempty"`
	CheckedAt           time.Time `json:"checked_at"`
}

type Auditor struct {
	convs   ConversationScanner
	msgs    MessageScanner
	posts   PostChecker
	cache   HealthCache
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

func New(convs ConversationScanner, msgs MessageScanner, posts PostChecker, cache HealthCache, cleanupPerSecond float64, log *zap.SugaredLogger) *Auditor {
	if cleanupPerSecond <= 0 {
		cleanupPerSecond = 20
	}
	return &Auditor{
		convs:   convs,
		msgs:    msgs,
		posts:   posts,
		cache:   cache,
		limiter: rate.NewLimiter(rate.Limit(cleanupPerSecond), 1),
		log:     log,
	}
}

// DetectGhostConversations scans every conversation and checks its post.
// Transient check failures are skipped, not flagged: a ghost verdict needs a
// definitive answer from the post service.
func (a *Auditor) DetectGhostConversations(ctx context.Context) ([]GhostCandidate, error) {
	ghosts := []GhostCandidate{}
	afterID := ""
	for {
		page, err := a.convs.ListPage(ctx, afterID, scanPageSize)
		if err != nil {
			return nil, fmt.Errorf("scan conversations: %w", err)
		}
		if len(page) == 0 {
			return ghosts, nil
		}
		for _, conv := range page {
			if g, ok := a.checkConversation(ctx, conv); ok {
				ghosts = append(ghosts, g)
			}
		}
		afterID = page[len(page)-1].ID
	}
}

func (a *Auditor) checkConversation(ctx context.Context, conv domain.Conversation) (GhostCandidate, bool) {
	if conv.PostID == "" {
		return GhostCandidate{ConversationID: conv.ID, Reason: ReasonMissingPostID}, true
	}
	check, err := a.posts.CheckPost(ctx, conv.PostID)
	if err != nil {
		a.log.Warnw("post check inconclusive, skipping",
			"conversation_id", conv.ID, "post_id", conv.PostID, "err", err)
		return GhostCandidate{}, false
	}
	switch check {
	case clients.PostMissing:
		return GhostCandidate{ConversationID: conv.ID, PostID: conv.PostID, Reason: ReasonPostGone}, true
	case clients.PostForbidden:
		return GhostCandidate{ConversationID: conv.ID, PostID: conv.PostID, Reason: ReasonPermissionDenied}, true
	}
	return GhostCandidate{}, false
}

// DetectOrphanedMessages finds messages whose parent conversation document no
// longer exists.
func (a *Auditor) DetectOrphanedMessages(ctx context.Context) ([]OrphanCandidate, error) {
	convIDs, err := a.msgs.DistinctConversationIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}

	orphans := []OrphanCandidate{}
	for _, convID := range convIDs {
		exists, err := a.convs.Exists(ctx, convID)
		if err != nil {
			a.log.Warnw("conversation existence check failed, skipping", "conversation_id", convID, "err", err)
			continue
		}
		if exists {
			continue
		}
		msgIDs, err := a.msgs.IDsByConversation(ctx, convID)
		if err != nil {
			a.log.Warnw("orphan listing failed", "conversation_id", convID, "err", err)
			continue
		}
		for _, id := range msgIDs {
			orphans = append(orphans, OrphanCandidate{
				ConversationID: convID,
				MessageID:      id,
				Reason:         "conversation no longer exists",
			})
		}
	}
	return orphans, nil
}

type CleanupOptions struct {
	// IncludeForbidden also deletes candidates flagged by permission-denied
	// checks. Off by default: forbidden is not the same fact as absent.
	IncludeForbidden bool
}

// CleanupGhostConversations deletes confirmed ghosts and their messages.
// Each candidate is handled independently.
func (a *Auditor) CleanupGhostConversations(ctx context.Context, candidates []GhostCandidate, opts CleanupOptions) *CleanupReport {
	report := &CleanupReport{}
	for _, g := range candidates {
		if g.Forbidden() && !opts.IncludeForbidden {
			a.log.Infow("skipping forbidden ghost candidate", "conversation_id", g.ConversationID)
			continue
		}
		if err := a.limiter.Wait(ctx); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", g.ConversationID, err))
			report.Failed++
			return report
		}
		if _, err := a.msgs.DeleteConversation(ctx, g.ConversationID); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: cascade: %v", g.ConversationID, err))
			continue
		}
		if err := a.convs.Delete(ctx, g.ConversationID); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", g.ConversationID, err))
			continue
		}
		report.Success++
	}
	a.log.Infow("ghost cleanup finished", "success", report.Success, "failed", report.Failed)
	return report
}

// CleanupOrphanedMessages deletes orphans grouped by conversation, one bulk
// delete per group.
func (a *Auditor) CleanupOrphanedMessages(ctx context.Context, candidates []OrphanCandidate) *CleanupReport {
	byConv := map[string]int{}
	for _, o := range candidates {
		byConv[o.ConversationID]++
	}

	report := &CleanupReport{}
	for convID, n := range byConv {
		if err := a.limiter.Wait(ctx); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", convID, err))
			report.Failed += n
			return report
		}
		if _, err := a.msgs.DeleteConversation(ctx, convID); err != nil {
			report.Failed += n
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", convID, err))
			continue
		}
		report.Success += n
	}
	a.log.Infow("orphan cleanup finished", "success", report.Success, "failed", report.Failed)
	return report
}

// QuickHealthCheck samples a handful of conversations and extrapolates the
// ghost count to the full population. Cheap enough for periodic polling; the
// result is cached when a cache is wired.
func (a *Auditor) QuickHealthCheck(ctx context.Context) (*HealthReport, error) {
	if a.cache != nil {
		if cached, err := a.cache.GetHealthSnapshot(ctx); err == nil && cached != nil {
			return cached, nil
		}
	}

	total, err := a.convs.Count(ctx)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{Healthy: true, TotalConversations: total, CheckedAt: time.Now().UTC()}
	if total == 0 {
		a.storeSnapshot(ctx, report)
		return report, nil
	}

	sample, err := a.convs.Sample(ctx, healthSampleSize)
	if err != nil {
		return nil, err
	}
	ghostsInSample := 0
	for _, conv := range sample {
		if g, ok := a.checkConversation(ctx, conv); ok {
			ghostsInSample++
			report.Issues = append(report.Issues, fmt.Sprintf("%s: %s", g.ConversationID, g.Reason))
		}
	}
	if len(sample) > 0 && ghostsInSample > 0 {
		report.EstimatedGhostCount = int64(ghostsInSample) * total / int64(len(sample))
		report.Healthy = false
	}

	a.storeSnapshot(ctx, report)
	return report, nil
}

func (a *Auditor) storeSnapshot(ctx context.Context, r *HealthReport) {
	if a.cache == nil {
		return
	}
	if err := a.cache.SetHealthSnapshot(ctx, r, time.Minute); err != nil {
		a.log.Warnw("health snapshot cache write failed", "err", err)
	}
}
