package service

import (
	"context"
	"testing"

	"github.com/runhub/run-community-hub/internal/domain/board"
	"github.com/runhub/run-community-hub/internal/domain/run"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointsFormula(t *testing.T) {
	f := NewPointsFormula()
	ctx := context.Background()

	derive := func(in board.PointsInput) float64 {
		points, err := f.Derive(ctx, in)
		require.NoError(t, err)
		return points
	}

	t.Run("podium positions earn a bonus", func(t *testing.T) {
		first := derive(board.PointsInput{Position: 1, BoardKind: run.BoardRegular, Mode: run.ModeSolo})
		second := derive(board.PointsInput{Position: 2, BoardKind: run.BoardRegular, Mode: run.ModeSolo})
		fourth := derive(board.PointsInput{Position: 4, BoardKind: run.BoardRegular, Mode: run.ModeSolo})

		assert.Equal(t, 125.0, first)
		assert.Equal(t, 75.0, second)
		assert.Equal(t, 25.0, fourth)
	})

	t.Run("obsolete runs earn base only", func(t *testing.T) {
		points := derive(board.PointsInput{Position: 1, Obsolete: true, BoardKind: run.BoardRegular, Mode: run.ModeSolo})
		assert.Equal(t, 25.0, points)
	})

	t.Run("co-op output is the per-owner share", func(t *testing.T) {
		solo := derive(board.PointsInput{Position: 1, BoardKind: run.BoardRegular, Mode: run.ModeSolo})
		coop := derive(board.PointsInput{Position: 1, BoardKind: run.BoardRegular, Mode: run.ModeCoOp})
		assert.Equal(t, solo/2, coop)
	})

	t.Run("category weight scales base and bonus", func(t *testing.T) {
		weighted := derive(board.PointsInput{
			Position:     1,
			BoardKind:    run.BoardRegular,
			Mode:         run.ModeSolo,
			CategoryName: "100%",
		})
		assert.Equal(t, 187.5, weighted)
	})

	t.Run("board kinds carry different base values", func(t *testing.T) {
		regular := derive(board.PointsInput{BoardKind: run.BoardRegular, Mode: run.ModeSolo})
		level := derive(board.PointsInput{BoardKind: run.BoardIndividualLevel, Mode: run.ModeSolo})
		golds := derive(board.PointsInput{BoardKind: run.BoardCommunityGolds, Mode: run.ModeSolo})

		assert.Greater(t, regular, level)
		assert.Greater(t, level, golds)
	})
}
