package kpi

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/pkg/logger"
	"github.com/ignite/kpi-processor/internal/utm"
)

// MailingParent emits sends, opens, clicks, open rate and CTR per send id.
type MailingParent struct {
	events EventReader
	parser *utm.Parser
	kw     keyWriter
}

func NewMailingParent(events EventReader, repo Repository, parser *utm.Parser, keyConcurrency int) *MailingParent {
	return &MailingParent{events: events, parser: parser, kw: keyWriter{repo: repo, concurrency: keyConcurrency}}
}

func (a *MailingParent) Channel() domain.Channel { return domain.ChannelMailingParent }

func (a *MailingParent) Aggregate(ctx context.Context, w domain.Window) (ChannelResult, error) {
	from, to := w.Start, w.EndOfRange()

	// Each fetch fills its own map; they are only read after Wait.
	var opens, clicks, sents map[int64]int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ev, err := a.events.FindOpens(gctx, from, to)
		if err != nil {
			return fmt.Errorf("fetch opens: %w", err)
		}
		opens = countBy(ev, func(e domain.OpenEvent) int64 { return e.SendID })
		return nil
	})
	g.Go(func() error {
		ev, err := a.events.FindClicks(gctx, from, to)
		if err != nil {
			return fmt.Errorf("fetch clicks: %w", err)
		}
		clicks = countBy(ev, func(e domain.ClickEvent) int64 { return e.SendID })
		return nil
	})
	g.Go(func() error {
		ev, err := a.events.FindSents(gctx, from, to)
		if err != nil {
			return fmt.Errorf("fetch sents: %w", err)
		}
		sents = countBy(ev, func(e domain.SentEvent) int64 { return e.SendID })
		return nil
	})
	if err := g.Wait(); err != nil {
		return ChannelResult{Channel: a.Channel()}, err
	}

	sendIDs := sortedKeys(opens)
	jobs := make([]keyJob, 0, len(sendIDs))
	for _, sendID := range sendIDs {
		o, c, s := opens[sendID], clicks[sendID], sents[sendID]
		jobs = append(jobs, keyJob{
			key: strconv.FormatInt(sendID, 10),
			build: func(ctx context.Context) ([]domain.KpiRecord, error) {
				campaignID, err := a.parser.CampaignIDFromSendID(ctx, sendID)
				if err != nil {
					return nil, err
				}
				return []domain.KpiRecord{
					record(domain.KpiMailingParentSends, float64(s), w, campaignID, ""),
					record(domain.KpiMailingParentOpens, float64(o), w, campaignID, ""),
					record(domain.KpiMailingParentClicks, float64(c), w, campaignID, ""),
					record(domain.KpiMailingParentOpenRate, domain.Rate(o, s), w, campaignID, ""),
					record(domain.KpiMailingParentCTR, domain.Rate(c, o), w, campaignID, ""),
				}, nil
			},
		})
	}

	logger.Debug("mailing parent grouped", "window", w.String(),
		"send_ids", len(sendIDs), "click_send_ids", len(clicks), "sent_send_ids", len(sents))
	return a.kw.write(ctx, a.Channel(), jobs), nil
}

// MailingFormat counts clicks whose utm_campaign token ends in one format tag
// and emits one click-count record per campaign sub id. Header, feed and body
// are instances of it.
type MailingFormat struct {
	channel domain.Channel
	format  domain.FormatTag
	code    domain.KpiCode
	events  EventReader
	parser  *utm.Parser
	kw      keyWriter
}

func NewMailingHeader(events EventReader, repo Repository, parser *utm.Parser, keyConcurrency int) *MailingFormat {
	return newMailingFormat(domain.ChannelMailingHeader, domain.FormatHeader, domain.KpiMailingHeaderClicks, events, repo, parser, keyConcurrency)
}

func NewMailingFeed(events EventReader, repo Repository, parser *utm.Parser, keyConcurrency int) *MailingFormat {
	return newMailingFormat(domain.ChannelMailingFeed, domain.FormatFeed, domain.KpiMailingFeedClicks, events, repo, parser, keyConcurrency)
}

func NewMailingBody(events EventReader, repo Repository, parser *utm.Parser, keyConcurrency int) *MailingFormat {
	return newMailingFormat(domain.ChannelMailingBody, domain.FormatBody, domain.KpiMailingBodyClicks, events, repo, parser, keyConcurrency)
}

func newMailingFormat(ch domain.Channel, f domain.FormatTag, code domain.KpiCode, events EventReader, repo Repository, parser *utm.Parser, keyConcurrency int) *MailingFormat {
	return &MailingFormat{
		channel: ch,
		format:  f,
		code:    code,
		events:  events,
		parser:  parser,
		kw:      keyWriter{repo: repo, concurrency: keyConcurrency},
	}
}

func (a *MailingFormat) Channel() domain.Channel { return a.channel }

type subIDGroup struct {
	campaignID string
	clicks     int
}

func (a *MailingFormat) Aggregate(ctx context.Context, w domain.Window) (ChannelResult, error) {
	clicks, err := a.events.FindClicks(ctx, w.Start, w.EndOfRange())
	if err != nil {
		return ChannelResult{Channel: a.channel}, fmt.Errorf("fetch clicks: %w", err)
	}

	groups := make(map[string]*subIDGroup)
	malformed := 0
	for _, c := range clicks {
		if !utm.HasToken(c.URL) {
			continue
		}
		meta, err := a.parser.ExtractFromURL(c.URL)
		if err != nil {
			if !errors.Is(err, utm.ErrNoToken) {
				malformed++
			}
			continue
		}
		if !a.format.Matches(meta.Format) {
			continue
		}
		g, ok := groups[meta.CampaignSubID]
		if !ok {
			g = &subIDGroup{campaignID: meta.CampaignID}
			groups[meta.CampaignSubID] = g
		}
		g.clicks++
	}
	if malformed > 0 {
		logger.Debug("clicks with malformed utm_campaign ignored", "channel", a.channel, "window", w.String(), "count", malformed)
	}

	subIDs := sortedKeys(groups)
	jobs := make([]keyJob, 0, len(subIDs))
	for _, subID := range subIDs {
		g := groups[subID]
		jobs = append(jobs, keyJob{
			key: subID,
			build: func(context.Context) ([]domain.KpiRecord, error) {
				return []domain.KpiRecord{record(a.code, float64(g.clicks), w, g.campaignID, subID)}, nil
			},
		})
	}
	return a.kw.write(ctx, a.channel, jobs), nil
}
