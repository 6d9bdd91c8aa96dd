package stats

import "github.com/rewired-gh/mentionoracle/internal/models"

// streakFold is the state of a single left-to-right pass over a hit pattern.
type streakFold struct {
	runHit  bool
	runLen  int
	bestHit int
	bestMis int
}

func (f streakFold) step(hit bool) streakFold {
	if f.runLen > 0 && hit == f.runHit {
		f.runLen++
	} else {
		f.runHit, f.runLen = hit, 1
	}
	if hit {
		f.bestHit = max(f.bestHit, f.runLen)
	} else {
		f.bestMis = max(f.bestMis, f.runLen)
	}
	return f
}

func foldStreaks(hits []bool) streakFold {
	var f streakFold
	for _, h := range hits {
		f = f.step(h)
	}
	return f
}

func streakType(hit bool) models.StreakType {
	if hit {
		return models.StreakHit
	}
	return models.StreakMiss
}

// CurrentStreak is the run ending at the most recent (last) period.
// An empty pattern yields a zero-length miss streak.
func CurrentStreak(hits []bool) models.Streak {
	f := foldStreaks(hits)
	if f.runLen == 0 {
		return models.Streak{Type: models.StreakMiss}
	}
	return models.Streak{Type: streakType(f.runHit), Length: f.runLen}
}

// LongestStreak is the longest hit run or miss run, whichever is longer; ties go to hits.
// An empty pattern yields a zero-length miss streak.
func LongestStreak(hits []bool) models.Streak {
	f := foldStreaks(hits)
	if len(hits) == 0 {
		return models.Streak{Type: models.StreakMiss}
	}
	if f.bestHit >= f.bestMis {
		return models.Streak{Type: models.StreakHit, Length: f.bestHit}
	}
	return models.Streak{Type: models.StreakMiss, Length: f.bestMis}
}
