package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/internal/repository"
	customError "github.com/segyhp/microloan-engine/pkg/errors"
	"github.com/segyhp/microloan-engine/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrCacheMiss is returned by ReportCache.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type redisCache struct {
	client redis.Cmdable
}

func NewRedisCache(client redis.Cmdable) ReportCache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return value, err
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// ReportService serves the read-only aggregations. Results are cached per
// calendar date for ttl; a failing cache only costs a database read.
type ReportService struct {
	store repository.Store
	cache ReportCache
	ttl   time.Duration
	clock utils.Clock
	log   logrus.FieldLogger
}

func NewReportService(store repository.Store, cache ReportCache, ttl time.Duration, clock utils.Clock, log logrus.FieldLogger) *ReportService {
	return &ReportService{
		store: store,
		cache: cache,
		ttl:   ttl,
		clock: clock,
		log:   log,
	}
}

func (s *ReportService) DailyCollections(ctx context.Context) (*domain.DailyCollectionsReport, error) {
	now := s.clock.Now()
	key := "report:daily:" + utils.FormatDate(now)

	return cached(ctx, s, key, func() (*domain.DailyCollectionsReport, error) {
		from, to := utils.DayBounds(now)
		summary, err := s.store.Reports().Collections(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return &domain.DailyCollectionsReport{
			Date:             utils.FormatDate(now),
			TotalCollections: domain.RoundCurrency(summary.Total),
			PaymentsCount:    summary.PaymentsCount,
		}, nil
	})
}

// Outstanding sums the balances of every loan not stored as PAID.
func (s *ReportService) Outstanding(ctx context.Context) (*domain.OutstandingReport, error) {
	key := "report:outstanding:" + utils.FormatDate(s.clock.Now())

	return cached(ctx, s, key, func() (*domain.OutstandingReport, error) {
		balances, err := s.store.Reports().OutstandingBalances(ctx)
		if err != nil {
			return nil, err
		}
		total := decimal.Zero
		for _, b := range balances {
			total = total.Add(domain.Balance(b.Amount, b.TotalPaid))
		}
		return &domain.OutstandingReport{
			OutstandingLoansCount: len(balances),
			OutstandingTotal:      domain.RoundCurrency(total),
		}, nil
	})
}

func (s *ReportService) Overdue(ctx context.Context) (*domain.OverdueReport, error) {
	today := utils.Today(s.clock)
	key := "report:overdue:" + utils.FormatDate(today)

	return cached(ctx, s, key, func() (*domain.OverdueReport, error) {
		loans, err := s.store.Reports().OverdueLoans(ctx, today)
		if err != nil {
			return nil, err
		}
		for _, l := range loans {
			l.Balance = domain.Balance(l.Amount, l.TotalPaid)
		}
		if loans == nil {
			loans = []*domain.OverdueLoan{}
		}
		return &domain.OverdueReport{OverdueCount: len(loans), Results: loans}, nil
	})
}

func (s *ReportService) MonthlyPerformance(ctx context.Context) (*domain.MonthlyPerformanceReport, error) {
	now := s.clock.Now()
	key := "report:monthly:" + utils.FormatDate(now)

	return cached(ctx, s, key, func() (*domain.MonthlyPerformanceReport, error) {
		monthStart := utils.MonthStart(now)
		_, endOfToday := utils.DayBounds(now)

		collections, err := s.store.Reports().Collections(ctx, monthStart, endOfToday)
		if err != nil {
			return nil, err
		}
		collections.Total = domain.RoundCurrency(collections.Total)

		loans, err := s.store.Reports().LoanSummary(ctx)
		if err != nil {
			return nil, err
		}

		return &domain.MonthlyPerformanceReport{
			MonthStart:  utils.FormatDate(monthStart),
			AsOf:        utils.FormatDate(now),
			Collections: collections,
			Loans:       loans,
		}, nil
	})
}

func cached[T any](ctx context.Context, s *ReportService, key string, load func() (*T, error)) (*T, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var out T
			if err := json.Unmarshal(raw, &out); err == nil {
				return &out, nil
			}
		case !errors.Is(err, ErrCacheMiss):
			s.log.WithField("key", key).WithError(customError.WrapCacheError(err)).Warn("report cache read failed")
		}
	}

	out, err := load()
	if err != nil {
		return nil, customError.WrapDatabaseError(fmt.Errorf("%s: %w", key, err))
	}

	if s.cache != nil {
		if raw, err := json.Marshal(out); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				s.log.WithField("key", key).WithError(customError.WrapCacheError(err)).Warn("report cache write failed")
			}
		}
	}

	return out, nil
}
