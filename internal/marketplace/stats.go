package marketplace

import (
	"context"

	"golang.org/x/sync/errgroup"

	"vantage/internal/models"
	"vantage/internal/repository"
)

const (
	defaultTopCategories = 5
	defaultRecentSales   = 10
)

// Stats aggregates marketplace totals from independent queries. Empty tables yield zeros.
func (s *Service) Stats(ctx context.Context) (*models.MarketplaceStats, error) {
	topLimit := s.cfg.TopCategoriesLimit
	if topLimit <= 0 {
		topLimit = defaultTopCategories
	}
	recentLimit := s.cfg.RecentSalesLimit
	if recentLimit <= 0 {
		recentLimit = defaultRecentSales
	}

	var (
		counts *repository.ItemCounts
		totals *repository.SalesTotals
		rating float64
		top    []models.CategoryStat
		recent []models.RecentSale
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counts, err = s.items.CountItems(gctx)
		return err
	})
	g.Go(func() (err error) {
		totals, err = s.purchases.Totals(gctx)
		return err
	})
	g.Go(func() (err error) {
		rating, err = s.items.AverageRating(gctx)
		return err
	})
	g.Go(func() (err error) {
		top, err = s.items.TopCategories(gctx, topLimit)
		return err
	})
	g.Go(func() (err error) {
		recent, err = s.purchases.Recent(gctx, recentLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if top == nil {
		top = []models.CategoryStat{}
	}
	if recent == nil {
		recent = []models.RecentSale{}
	}

	return &models.MarketplaceStats{
		TotalItems:    counts.TotalItems,
		ActiveItems:   counts.ActiveItems,
		TotalRevenue:  totals.TotalRevenue,
		TotalSales:    totals.TotalSales,
		AverageRating: rating,
		TopCategories: top,
		RecentSales:   recent,
	}, nil
}
