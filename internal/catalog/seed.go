package catalog

import (
	"context"
	"fmt"

	"lessonchat/internal/logger"
	"lessonchat/pkg/types"
)

// SeedChildren provides the demo children installed on an empty catalog.
func SeedChildren() []types.Child {
	seven, eight, nine := 7, 8, 9
	return []types.Child{
		{
			Name:        "Ava",
			Personality: "Curious and chatty, loves asking why.",
			Age:         &seven,
			Preferences: []string{"animals", "drawing"},
		},
		{
			Name:        "Leo",
			Personality: "Quiet thinker who enjoys puzzles.",
			Age:         &eight,
			Preferences: []string{"numbers", "space"},
		},
		{
			Name:        "Maya",
			Personality: "Energetic storyteller with a big imagination.",
			Age:         &nine,
			Preferences: []string{"stories", "music"},
		},
	}
}

// SeedLesson provides the demo lesson installed on an empty catalog.
func SeedLesson() types.Lesson {
	return types.Lesson{
		Title:       "Exploring the Solar System",
		Subject:     "Science",
		TargetAge:   8,
		Description: "A guided chat about the planets, from the hot surface of Mercury to the icy rings of Saturn.",
		Steps: []types.Step{
			{
				ID:                "1",
				Title:             "Say hello",
				Description:       "Everyone introduces themselves and names a favourite planet.",
				AIPrompt:          "Welcome the children warmly and ask each one for a favourite planet.",
				ExpectedResponses: []string{"Mars", "Saturn", "Earth"},
				Duration:          5,
			},
			{
				ID:          "2",
				Title:       "Planet facts",
				Description: "Share one surprising fact about each planet the children named.",
				AIPrompt:    "Give one short, surprising fact for every planet mentioned and invite questions.",
				Duration:    15,
			},
		},
	}
}

// Seed installs the demo children and lesson when the catalog has no lessons.
// It reports whether anything was written.
func (m *Manager) Seed(ctx context.Context) (bool, error) {
	existing, err := m.repo.ListLessons(ctx, false)
	if err != nil {
		return false, fmt.Errorf("failed to inspect catalog: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	lesson := SeedLesson()
	for _, c := range SeedChildren() {
		child := c
		created, err := m.CreateChild(ctx, &child)
		if err != nil {
			return false, fmt.Errorf("failed to seed child %s: %w", c.Name, err)
		}
		lesson.Participants = append(lesson.Participants, created.ID)
	}

	if _, err := m.CreateLesson(ctx, &lesson); err != nil {
		return false, fmt.Errorf("failed to seed lesson: %w", err)
	}
	logger.Info("catalog_seeded", "lesson_id", lesson.ID, "children", len(lesson.Participants))
	return true, nil
}
