package ranking_test

import (
	"fmt"
	"math"
	"testing"

	"draftlab/analytics/internal/models"
	"draftlab/analytics/internal/ranking"

	. "github.com/smartystreets/goconvey/convey"
)

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }

func wr(name string, epa *float64) *models.WRRecord {
	return &models.WRRecord{
		PlayerSeason:  models.PlayerSeason{PlayerID: name, PlayerName: name, Season: 2024, Position: models.PositionWR},
		ReceiverStats: models.ReceiverStats{TotalEPA: epa},
	}
}

var epaOnly = ranking.WeightTable{Name: "epa", Terms: []ranking.Term{
	{Metric: models.MetricTotalEPA, Weight: 1, Kind: ranking.TermPercentile},
}}

func TestPercentileRank(t *testing.T) {
	Convey("Given a cohort of EPA values", t, func() {
		cohort := []float64{10, 5, 0}

		Convey("The middle value ranks above one of three", func() {
			So(ranking.PercentileRank(5, cohort), ShouldAlmostEqual, 33.333, 0.01)
		})

		Convey("The minimum ranks at zero", func() {
			So(ranking.PercentileRank(0, cohort), ShouldEqual, 0)
		})

		Convey("A value above the maximum ranks at 100", func() {
			So(ranking.PercentileRank(11, cohort), ShouldEqual, 100)
		})

		Convey("Rank never decreases as the value grows", func() {
			prev := -1.0
			for v := -2.0; v <= 12; v += 0.25 {
				r := ranking.PercentileRank(v, cohort)
				So(r, ShouldBeGreaterThanOrEqualTo, prev)
				prev = r
			}
		})
	})

	Convey("Given a cohort with non-finite values", t, func() {
		cohort := []float64{math.NaN(), 1, math.Inf(1), 2}

		Convey("They are excluded from numerator and denominator", func() {
			So(ranking.PercentileRank(2, cohort), ShouldEqual, 50)
		})

		Convey("A NaN value ranks 0 and infinities rank at the ends", func() {
			So(ranking.PercentileRank(math.NaN(), cohort), ShouldEqual, 0)
			So(ranking.PercentileRank(math.Inf(-1), cohort), ShouldEqual, 0)
			So(ranking.PercentileRank(math.Inf(1), cohort), ShouldEqual, 100)
		})
	})

	Convey("Given an empty or all-NaN cohort", t, func() {
		So(ranking.PercentileRank(3, nil), ShouldEqual, ranking.NeutralPercentile)
		So(ranking.PercentileRank(3, []float64{math.NaN()}), ShouldEqual, ranking.NeutralPercentile)
	})
}

func TestTiers(t *testing.T) {
	Convey("Given percentile cut points", t, func() {
		So(ranking.TierForPercentile(100), ShouldEqual, 1)
		So(ranking.TierForPercentile(87.5), ShouldEqual, 1)
		So(ranking.TierForPercentile(87.4), ShouldEqual, 2)
		So(ranking.TierForPercentile(50), ShouldEqual, 4)
		So(ranking.TierForPercentile(49.9), ShouldEqual, 5)
		So(ranking.TierForPercentile(12.5), ShouldEqual, 7)
		So(ranking.TierForPercentile(12.4), ShouldEqual, 8)
		So(ranking.TierForPercentile(0), ShouldEqual, 8)
	})

	Convey("Given sixteen evenly spaced scores", t, func() {
		scores := make([]float64, 16)
		for n := range scores {
			scores[n] = float64(n + 1)
		}

		Convey("Each tier holds exactly two of them", func() {
			counts := map[int]int{}
			for _, s := range scores {
				counts[ranking.AssignTier(s, scores)]++
			}
			for tier := 1; tier <= ranking.TierCount; tier++ {
				So(counts[tier], ShouldEqual, 2)
			}
		})
	})

	Convey("Given an empty score cohort", t, func() {
		So(ranking.AssignTier(42, nil), ShouldEqual, ranking.TierCount)
	})
}

func TestRank(t *testing.T) {
	Convey("Given three receivers with EPA 10, 5 and 0", t, func() {
		records := []models.Record{wr("low", f(0)), wr("high", f(10)), wr("mid", f(5))}
		ranked := ranking.Rank(records, epaOnly)

		Convey("They are ordered best first with dense rank numbers", func() {
			So(ranked[0].Base().PlayerName, ShouldEqual, "high")
			So(ranked[1].Base().PlayerName, ShouldEqual, "mid")
			So(ranked[2].Base().PlayerName, ShouldEqual, "low")
			for n, rec := range ranked {
				So(rec.Base().MyRankNum, ShouldEqual, n+1)
			}
		})

		Convey("Scores and tiers follow the cohort percentiles", func() {
			So(ranked[0].Base().MyRank, ShouldAlmostEqual, 66.667, 0.01)
			So(ranked[0].Base().Tier, ShouldEqual, 3)
			So(ranked[1].Base().Tier, ShouldEqual, 6)
			So(ranked[2].Base().Tier, ShouldEqual, 8)
		})
	})

	Convey("Given a larger cohort", t, func() {
		var records []models.Record
		for n := 0; n < 37; n++ {
			records = append(records, wr(fmt.Sprintf("p%02d", n), f(float64((n*17)%23))))
		}
		ranked := ranking.Rank(records, epaOnly)

		Convey("Rank numbers are a permutation of 1..N", func() {
			seen := map[int]bool{}
			for _, rec := range ranked {
				seen[rec.Base().MyRankNum] = true
			}
			So(len(seen), ShouldEqual, 37)
			for n := 1; n <= 37; n++ {
				So(seen[n], ShouldBeTrue)
			}
		})

		Convey("Tier never improves as rank number grows", func() {
			for n := 1; n < len(ranked); n++ {
				So(ranked[n].Base().Tier, ShouldBeGreaterThanOrEqualTo, ranked[n-1].Base().Tier)
			}
		})

		Convey("Ranking again yields identical results", func() {
			before := make([]models.PlayerSeason, len(ranked))
			for n, rec := range ranked {
				before[n] = *rec.Base()
			}
			again := ranking.Rank(ranked, epaOnly)
			for n, rec := range again {
				So(*rec.Base(), ShouldResemble, before[n])
			}
		})
	})

	Convey("Given tied records", t, func() {
		records := []models.Record{wr("first", f(3)), wr("second", f(3)), wr("third", f(1))}
		ranked := ranking.Rank(records, epaOnly)

		Convey("Ties keep their input order", func() {
			So(ranked[0].Base().PlayerName, ShouldEqual, "first")
			So(ranked[1].Base().PlayerName, ShouldEqual, "second")
		})
	})

	Convey("Given a record missing a metric", t, func() {
		records := []models.Record{wr("missing", nil), wr("zero", f(0)), wr("pos", f(2))}
		ranked := ranking.Rank(records, epaOnly)

		Convey("It scores like the worst raw value", func() {
			So(ranked[2].Base().MyRank, ShouldEqual, ranked[1].Base().MyRank)
			So(ranked[0].Base().PlayerName, ShouldEqual, "pos")
		})
	})

	Convey("Given an empty cohort", t, func() {
		So(ranking.Rank(nil, epaOnly), ShouldBeEmpty)
	})
}

func TestInvertedTierTerms(t *testing.T) {
	table := ranking.DefaultTables()["wr_projection"]

	Convey("Given a lone projection without team tiers", t, func() {
		rec := wr("solo", nil)
		score := ranking.NewScorer(table, []models.Record{rec}).Score(rec)

		Convey("Missing tiers count as tier 8", func() {
			So(score, ShouldAlmostEqual, 9.0, 1e-9)
		})
	})

	Convey("Given a projection with every tier at 1", t, func() {
		rec := wr("elite", nil)
		rec.PassOffenseTier, rec.QBTier, rec.EPATier, rec.NYPassFreqTier = i(1), i(1), i(1), i(1)
		score := ranking.NewScorer(table, []models.Record{rec}).Score(rec)

		So(score, ShouldAlmostEqual, 40.5, 1e-9)
	})

	Convey("Given a configured missing tier", t, func() {
		rec := wr("solo", nil)
		score := ranking.NewScorer(table, []models.Record{rec}, ranking.WithMissingTier(10)).Score(rec)

		So(score, ShouldEqual, 0)
	})
}

func TestPipeline(t *testing.T) {
	Convey("Given the default pipeline", t, func() {
		p := ranking.NewPipeline(nil)

		Convey("Every default table validates", func() {
			for _, name := range p.Tables().Names() {
				So(p.Tables()[name].Validate(), ShouldBeNil)
			}
		})

		Convey("An unknown table is rejected", func() {
			_, err := p.Rank([]models.Record{wr("a", f(1))}, "kicker")
			So(err, ShouldNotBeNil)
		})

		Convey("A known table ranks the cohort", func() {
			ranked, err := p.Rank([]models.Record{wr("a", f(1)), wr("b", f(4))}, "wr")
			So(err, ShouldBeNil)
			So(ranked[0].Base().PlayerName, ShouldEqual, "b")
			So(ranking.TierCounts(ranked), ShouldHaveLength, 2)
		})
	})
}
