package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/cocoro-lab/cocoro/pkg/domain/types"
)

func TestStageIDValidate(t *testing.T) {
	t.Run("valid stage IDs", func(t *testing.T) {
		for _, id := range []types.StageID{
			types.StageOrientation,
			types.StageSelfReflection,
			types.StageClosingFeedback,
			"custom-stage",
		} {
			gt.NoError(t, id.Validate())
		}
	})

	t.Run("invalid stage IDs", func(t *testing.T) {
		for _, id := range []types.StageID{"", "Upper-Case", "has space", "trailing-"} {
			gt.Value(t, id.Validate()).NotNil()
		}
	})
}

func TestMemoryCategory(t *testing.T) {
	t.Run("priority table is strictly ordered", func(t *testing.T) {
		cats := types.AllMemoryCategories()
		for i := 1; i < len(cats); i++ {
			gt.Number(t, cats[i-1].Priority()).Greater(cats[i].Priority())
		}
	})

	t.Run("core identity never expires", func(t *testing.T) {
		gt.Number(t, types.MemoryCategoryCoreIdentity.ExpiryDays()).Equal(0)
	})

	t.Run("expiry table", func(t *testing.T) {
		gt.Number(t, types.MemoryCategoryPatterns.ExpiryDays()).Equal(365)
		gt.Number(t, types.MemoryCategoryPreferences.ExpiryDays()).Equal(180)
		gt.Number(t, types.MemoryCategoryEpisodic.ExpiryDays()).Equal(90)
		gt.Number(t, types.MemoryCategoryContextual.ExpiryDays()).Equal(30)
	})

	t.Run("parse rejects unknown category", func(t *testing.T) {
		_, err := types.ParseMemoryCategory("unknown")
		gt.Value(t, err).NotNil()
	})
}

func TestConfidenceTier(t *testing.T) {
	gt.Bool(t, types.ConfidenceHigh.IsValid()).True()
	gt.Bool(t, types.ConfidenceTier("sure").IsValid()).False()
	gt.Value(t, types.ConfidenceTier("").Normalize()).Equal(types.ConfidenceMedium)
}

func TestLangCode(t *testing.T) {
	gt.NoError(t, types.LangCode("en").Validate())
	gt.NoError(t, types.LangCode("sv").Validate())
	gt.Value(t, types.LangCode("eng").Validate()).NotNil()
	gt.Value(t, types.LangCode("").Normalize()).Equal(types.LangDefault)
}
