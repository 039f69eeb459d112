package kpi

import (
	"context"
	"fmt"

	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/pkg/logger"
	"github.com/ignite/kpi-processor/internal/utm"
)

type pushCodes struct {
	sends, opens, openRate domain.KpiCode
}

// Push emits sends, opens and open rate per campaign id for one push
// selector. Message names sharing a campaign id are summed.
type Push struct {
	channel  domain.Channel
	selector PushSelector
	codes    pushCodes
	events   EventReader
	kw       keyWriter
}

func NewPushApp(events EventReader, repo Repository, keyConcurrency int) *Push {
	return &Push{
		channel:  domain.ChannelPushApp,
		selector: PushApp,
		codes:    pushCodes{domain.KpiPushAppSends, domain.KpiPushAppOpens, domain.KpiPushAppOpenRate},
		events:   events,
		kw:       keyWriter{repo: repo, concurrency: keyConcurrency},
	}
}

func NewPushWeb(events EventReader, repo Repository, keyConcurrency int) *Push {
	return &Push{
		channel:  domain.ChannelPushWeb,
		selector: PushWeb,
		codes:    pushCodes{domain.KpiPushWebSends, domain.KpiPushWebOpens, domain.KpiPushWebOpenRate},
		events:   events,
		kw:       keyWriter{repo: repo, concurrency: keyConcurrency},
	}
}

func (a *Push) Channel() domain.Channel { return a.channel }

type pushCount struct {
	sent, opened int
}

func (a *Push) Aggregate(ctx context.Context, w domain.Window) (ChannelResult, error) {
	rows, err := a.events.FindPush(ctx, w.Start.Format(domain.DateLayout), w.End.Format(domain.DateLayout), a.selector)
	if err != nil {
		return ChannelResult{Channel: a.channel}, fmt.Errorf("fetch push %s: %w", a.selector, err)
	}

	byMessage := make(map[string]*pushCount)
	for _, r := range rows {
		c, ok := byMessage[r.MessageName]
		if !ok {
			c = &pushCount{}
			byMessage[r.MessageName] = c
		}
		c.sent++
		if r.MessageOpened {
			c.opened++
		}
	}

	byCampaign := make(map[string]*pushCount)
	unresolved := 0
	for _, name := range sortedKeys(byMessage) {
		campaignID, err := utm.CampaignIDFromMessageName(name)
		if err != nil {
			logger.Warn("push message skipped", "channel", a.channel, "message_name", name, "error", err)
			unresolved++
			continue
		}
		c, ok := byCampaign[campaignID]
		if !ok {
			c = &pushCount{}
			byCampaign[campaignID] = c
		}
		c.sent += byMessage[name].sent
		c.opened += byMessage[name].opened
	}

	campaignIDs := sortedKeys(byCampaign)
	jobs := make([]keyJob, 0, len(campaignIDs))
	for _, campaignID := range campaignIDs {
		c := byCampaign[campaignID]
		jobs = append(jobs, keyJob{
			key: campaignID,
			build: func(context.Context) ([]domain.KpiRecord, error) {
				return []domain.KpiRecord{
					record(a.codes.sends, float64(c.sent), w, campaignID, ""),
					record(a.codes.opens, float64(c.opened), w, campaignID, ""),
					record(a.codes.openRate, domain.Rate(c.opened, c.sent), w, campaignID, ""),
				}, nil
			},
		})
	}

	res := a.kw.write(ctx, a.channel, jobs)
	res.Keys += unresolved
	res.Skipped += unresolved
	return res, nil
}
