package portfolio

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument: операция отклонена из-за аргументов.
// Все ошибки валидации ниже оборачивают её.
var ErrInvalidArgument = errors.New("invalid argument")

// Ошибки валидации аргументов.
var (
	// ErrUnknownSector: сектора нет во вселенной.
	ErrUnknownSector = fmt.Errorf("%w: unknown sector", ErrInvalidArgument)

	// ErrInvalidWeight: вес вне [0, 1] или отрицательное изменение.
	ErrInvalidWeight = fmt.Errorf("%w: invalid weight", ErrInvalidArgument)

	// ErrAmbiguousAdjustment: задано не ровно одно из set/increase/decrease.
	ErrAmbiguousAdjustment = fmt.Errorf("%w: exactly one of set_weight, increase_by_weight, decrease_by_weight is required", ErrInvalidArgument)
)

// Ошибки состояния портфеля.
var (
	// ErrPortfolioNotFound: портфель с таким ID не существует.
	ErrPortfolioNotFound = errors.New("portfolio not found")

	// ErrUnknownAsset: asset_id отсутствует во вселенной.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrPortfolioExists: портфель с таким ID уже создан.
	ErrPortfolioExists = errors.New("portfolio already exists")

	// ErrEmptySector: в портфеле нет активов сектора.
	ErrEmptySector = errors.New("no assets from sector in portfolio")

	// ErrInsufficientWeight: в секторе-источнике не хватает веса.
	ErrInsufficientWeight = errors.New("insufficient sector weight")

	// ErrZeroWeightSlice: пропорциональное изменение невозможно,
	// потому что одна из сторон имеет нулевой вес.
	ErrZeroWeightSlice = errors.New("cannot adjust a zero-weight portfolio slice")
)
