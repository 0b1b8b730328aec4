package service

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	"crat/backend/internal/apperr"
	"crat/backend/internal/config"
	"crat/backend/internal/models"
)

const secondsPerDay = 86400

// StageService derives stage status views from chain state and the
// static stage configuration.
type StageService struct {
	chain              ChainReader
	stages             []models.Stage
	masterDecimals     uint8
	limitDisplayFactor *big.Int
	now                func() time.Time
	logger             *zap.Logger
}

// NewStageService creates a stage service
func NewStageService(chain ChainReader, cfg *config.Config, logger *zap.Logger) *StageService {
	return &StageService{
		chain:              chain,
		stages:             cfg.StageList(),
		masterDecimals:     cfg.Crowdsale.MasterDecimals,
		limitDisplayFactor: big.NewInt(cfg.Crowdsale.LimitDisplayFactor),
		now:                time.Now,
		logger:             logger,
	}
}

// CurrentStage returns the crowdsale status and, while active, the
// current stage's price, progress and the next stage's price.
// DaysLeft counts whole days remaining until the current stage's end
// boundary, clamped at zero.
func (s *StageService) CurrentStage(ctx context.Context) (*models.CurrentStageInfo, error) {
	startTime, err := s.chain.StartTime(ctx)
	if err != nil {
		return nil, apperr.Dependency(err)
	}
	if startTime.Sign() == 0 {
		return &models.CurrentStageInfo{Status: models.CrowdsaleNotStarted}, nil
	}

	stageIndex, err := s.chain.DetermineStage(ctx)
	if err != nil {
		return nil, apperr.Dependency(err)
	}
	if !stageIndex.IsInt64() || stageIndex.Int64() >= int64(len(s.stages)) {
		return &models.CurrentStageInfo{Status: models.CrowdsaleEnded}, nil
	}
	index := int(stageIndex.Int64())
	stage := s.stages[index]

	info := &models.CurrentStageInfo{
		Status:      models.CrowdsaleActive,
		StageNumber: index + 1,
		PriceUSD:    stage.Price,
	}

	if index+1 < len(s.stages) {
		next := s.stages[index+1].Price
		info.NextPrice = &next
	}

	boundary, err := s.chain.StageBoundary(ctx, index)
	if err != nil {
		return nil, apperr.Dependency(err)
	}
	info.DaysLeft = daysUntil(boundary.Int64(), s.now().Unix())

	sold, err := s.chain.TokensSold(ctx, index)
	if err != nil {
		return nil, apperr.Dependency(err)
	}
	info.TokensSold = new(big.Int).Quo(sold, pow10(s.masterDecimals))

	limit, err := s.chain.StageLimit(ctx, index)
	if err != nil {
		return nil, apperr.Dependency(err)
	}
	info.TokensLimit = new(big.Int).Mul(limit, s.limitDisplayFactor)

	return info, nil
}

// ListStages returns every configured stage with its on-chain limit
// and a status relative to the chain-reported current stage.
func (s *StageService) ListStages(ctx context.Context) ([]models.StageInfo, error) {
	startTime, err := s.chain.StartTime(ctx)
	if err != nil {
		return nil, apperr.Dependency(err)
	}
	started := startTime.Sign() != 0

	currentIndex := int64(-1)
	if started {
		stageIndex, err := s.chain.DetermineStage(ctx)
		if err != nil {
			return nil, apperr.Dependency(err)
		}
		if stageIndex.IsInt64() {
			currentIndex = stageIndex.Int64()
		} else {
			currentIndex = int64(len(s.stages))
		}
	}

	infos := make([]models.StageInfo, 0, len(s.stages))
	for _, stage := range s.stages {
		limit, err := s.chain.StageLimit(ctx, stage.Index)
		if err != nil {
			return nil, apperr.Dependency(err)
		}

		status := models.StageSoon
		if started {
			switch {
			case int64(stage.Index) < currentIndex:
				status = models.StageClosed
			case int64(stage.Index) == currentIndex:
				status = models.StageActive
			}
		}

		infos = append(infos, models.StageInfo{
			Status:      status,
			Name:        stage.Name,
			PriceUSD:    stage.Price,
			TokensLimit: new(big.Int).Mul(limit, s.limitDisplayFactor),
		})
	}

	return infos, nil
}

// daysUntil returns whole days from now to ts, clamped at zero
func daysUntil(ts, now int64) int64 {
	if ts <= now {
		return 0
	}
	return (ts - now) / secondsPerDay
}

// pow10 returns 10^n as a big integer
func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
