// Package dynamodb stores MetricsSummary rows in a DynamoDB table keyed by
// provider_id. Every upsert is a single UpdateItem, so it is atomic on the
// table side as well.
package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/service/metrics"
)

// DDBAPI is the subset of the DynamoDB client the repository uses.
type DDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

const timeLayout = time.RFC3339Nano

type metricsItem struct {
	ProviderID              string  `dynamodbav:"provider_id"`
	ID                      string  `dynamodbav:"id"`
	TotalActiveCampaigns    int     `dynamodbav:"total_active_campaigns"`
	TotalInvestmentPeriod   float64 `dynamodbav:"total_investment_period"`
	TotalInvestmentForBrand float64 `dynamodbav:"total_investment_for_brand"`
	TotalSales              float64 `dynamodbav:"total_sales"`
	CreatedAt               string  `dynamodbav:"created_at"`
	UpdatedAt               string  `dynamodbav:"updated_at"`
}

func (it metricsItem) summary() domain.MetricsSummary {
	created, _ := time.Parse(timeLayout, it.CreatedAt)
	updated, _ := time.Parse(timeLayout, it.UpdatedAt)
	return domain.MetricsSummary{
		ID:                      it.ID,
		ProviderID:              it.ProviderID,
		TotalActiveCampaigns:    it.TotalActiveCampaigns,
		TotalInvestmentPeriod:   it.TotalInvestmentPeriod,
		TotalInvestmentForBrand: it.TotalInvestmentForBrand,
		TotalSales:              it.TotalSales,
		CreatedAt:               created,
		UpdatedAt:               updated,
	}
}

// MetricsRepo implements metrics.Repository on DynamoDB.
type MetricsRepo struct {
	client    DDBAPI
	tableName string
}

func NewMetricsRepo(client DDBAPI, tableName string) *MetricsRepo {
	return &MetricsRepo{client: client, tableName: tableName}
}

func providerKey(providerID string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"provider_id": &ddbtypes.AttributeValueMemberS{Value: providerID},
	}
}

// Upsert overwrites the numeric fields and updated_at, and sets id and
// created_at only when the item is new.
func (r *MetricsRepo) Upsert(ctx context.Context, s *domain.MetricsSummary) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := s.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	values, err := attributevalue.MarshalMap(map[string]interface{}{
		":id":  s.ID,
		":tac": s.TotalActiveCampaigns,
		":tip": s.TotalInvestmentPeriod,
		":tib": s.TotalInvestmentForBrand,
		":ts":  s.TotalSales,
		":now": now.Format(timeLayout),
	})
	if err != nil {
		return fmt.Errorf("marshal metrics values: %w", err)
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       providerKey(s.ProviderID),
		UpdateExpression: aws.String("SET #id = if_not_exists(#id, :id), created_at = if_not_exists(created_at, :now), " +
			"total_active_campaigns = :tac, total_investment_period = :tip, " +
			"total_investment_for_brand = :tib, total_sales = :ts, updated_at = :now"),
		ExpressionAttributeNames:  map[string]string{"#id": "id"},
		ExpressionAttributeValues: values,
		ReturnValues:              ddbtypes.ReturnValueAllNew,
	})
	if err != nil {
		return fmt.Errorf("update metrics item %s: %w", s.ProviderID, err)
	}

	var item metricsItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return fmt.Errorf("unmarshal metrics item: %w", err)
	}
	stored := item.summary()
	s.ID = stored.ID
	s.CreatedAt = stored.CreatedAt
	return nil
}

func (r *MetricsRepo) FindByProviderID(ctx context.Context, providerID string) (*domain.MetricsSummary, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            providerKey(providerID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get metrics item %s: %w", providerID, err)
	}
	if len(out.Item) == 0 {
		return nil, metrics.ErrNotFound
	}
	var item metricsItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal metrics item: %w", err)
	}
	s := item.summary()
	return &s, nil
}

func (r *MetricsRepo) FindAll(ctx context.Context) ([]domain.MetricsSummary, error) {
	var out []domain.MetricsSummary
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{TableName: aws.String(r.tableName)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan metrics: %w", err)
		}
		var items []metricsItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal metrics page: %w", err)
		}
		for _, it := range items {
			out = append(out, it.summary())
		}
	}
	return out, nil
}
