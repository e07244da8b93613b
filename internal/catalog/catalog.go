// Package catalog holds the static learning content: lessons with their
// videos, quizzes and mini-games.
package catalog

import "sort"

// Lesson is a video lesson
type Lesson struct {
	ID          string `json:"id"`
	VideoID     string `json:"video_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Minutes     int    `json:"minutes"`
	QuizID      string `json:"quiz_id,omitempty"`
}

// Question is a multiple-choice question
type Question struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Answer  int      `json:"answer"`
}

// Quiz is a fixed set of questions
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// GameKind selects the engine a game runs on
type GameKind string

const (
	GameKindMatch  GameKind = "match"
	GameKindMemory GameKind = "memory"
	GameKindQuiz   GameKind = "quiz"
)

// Game is a mini-game. A zero Cost means it is playable without unlocking.
type Game struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Kind        GameKind `json:"kind"`
	Cost        int64    `json:"cost"`
}

// Item is a drag-match item; dragging item X only satisfies target X.
type Item struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Target string `json:"target"`
}

// Pair is a memory-card pair: one text card and one emoji card.
type Pair struct {
	Text  string `json:"text"`
	Emoji string `json:"emoji"`
}

// Catalog is the full content listing served to clients
type Catalog struct {
	Lessons []Lesson `json:"lessons"`
	Quizzes []Quiz   `json:"quizzes"`
	Games   []Game   `json:"games"`
}

var lessons = []Lesson{
	{ID: "intro-geography", VideoID: "video-intro-geography", Title: "Introduction to Geography", Description: "Learn the basics of world geography and map reading", Minutes: 15, QuizID: "intro-geography"},
	{ID: "continents-oceans", VideoID: "video-continents-oceans", Title: "Continents and Oceans", Description: "Explore the seven continents and five oceans", Minutes: 20},
	{ID: "countries-capitals", VideoID: "video-countries-capitals", Title: "Countries and Capitals", Description: "Discover countries around the world and their capitals", Minutes: 25},
	{ID: "climate-zones", VideoID: "video-climate-zones", Title: "Climate Zones", Description: "Understanding different climate regions", Minutes: 18},
	{ID: "world-landmarks", VideoID: "video-world-landmarks", Title: "World Landmarks", Description: "Famous landmarks and monuments worldwide", Minutes: 22},
	{ID: "natural-wonders", VideoID: "video-natural-wonders", Title: "Natural Wonders", Description: "Explore Earth's most amazing natural formations", Minutes: 20},
}

var quizzes = []Quiz{
	{
		ID:    "intro-geography",
		Title: "Geography Quiz",
		Questions: []Question{
			{Prompt: "What is the largest ocean on Earth?", Options: []string{"Atlantic Ocean", "Indian Ocean", "Arctic Ocean", "Pacific Ocean"}, Answer: 3},
			{Prompt: "How many continents are there?", Options: []string{"5", "6", "7", "8"}, Answer: 2},
			{Prompt: "What is the capital of France?", Options: []string{"London", "Paris", "Berlin", "Madrid"}, Answer: 1},
		},
	},
}

var games = []Game{
	{ID: "continent-match", Title: "Continent Match", Description: "Drag each continent onto its name", Kind: GameKindMatch},
	{ID: "letter-match", Title: "Match the Letters", Description: "Match small letters to BIG letters", Kind: GameKindMatch},
	{ID: "memory-recap", Title: "Memory Recap", Description: "Match eco-friendly pairs", Kind: GameKindMemory},
	{ID: "flag-quiz", Title: "Flag Quiz", Description: "Guess the country from its flag", Kind: GameKindQuiz, Cost: 500},
}

// Continents are the drag-match items for continent-match.
var Continents = []Item{
	{ID: "africa", Label: "Africa", Target: "africa"},
	{ID: "asia", Label: "Asia", Target: "asia"},
	{ID: "europe", Label: "Europe", Target: "europe"},
	{ID: "north-america", Label: "North America", Target: "north-america"},
	{ID: "south-america", Label: "South America", Target: "south-america"},
	{ID: "australia", Label: "Australia", Target: "australia"},
}

// Letters are the drag-match items for letter-match.
var Letters = []Item{
	{ID: "a", Label: "a", Target: "A"},
	{ID: "b", Label: "b", Target: "B"},
	{ID: "c", Label: "c", Target: "C"},
	{ID: "d", Label: "d", Target: "D"},
	{ID: "e", Label: "e", Target: "E"},
	{ID: "f", Label: "f", Target: "F"},
}

// MemoryPairs are the card pairs for memory-recap.
var MemoryPairs = []Pair{
	{Text: "Ocean", Emoji: "🌊"},
	{Text: "Mountain", Emoji: "⛰️"},
	{Text: "Forest", Emoji: "🌲"},
	{Text: "Desert", Emoji: "🏜️"},
	{Text: "River", Emoji: "🏞️"},
	{Text: "Volcano", Emoji: "🌋"},
}

// Flags is the flag-quiz question pool.
var Flags = []Question{
	{Prompt: "🇺🇸", Options: []string{"USA", "UK", "France", "Canada"}, Answer: 0},
	{Prompt: "🇬🇧", Options: []string{"USA", "UK", "Australia", "New Zealand"}, Answer: 1},
	{Prompt: "🇫🇷", Options: []string{"Netherlands", "France", "Italy", "Russia"}, Answer: 1},
	{Prompt: "🇩🇪", Options: []string{"Belgium", "Germany", "Austria", "Switzerland"}, Answer: 1},
	{Prompt: "🇮🇹", Options: []string{"Italy", "Mexico", "Ireland", "Hungary"}, Answer: 0},
	{Prompt: "🇪🇸", Options: []string{"Portugal", "Spain", "Colombia", "Venezuela"}, Answer: 1},
	{Prompt: "🇯🇵", Options: []string{"Japan", "South Korea", "China", "Bangladesh"}, Answer: 0},
	{Prompt: "🇨🇳", Options: []string{"Vietnam", "China", "Morocco", "Turkey"}, Answer: 1},
	{Prompt: "🇮🇳", Options: []string{"India", "Ireland", "Italy", "Niger"}, Answer: 0},
	{Prompt: "🇧🇷", Options: []string{"Brazil", "Portugal", "Argentina", "Jamaica"}, Answer: 0},
	{Prompt: "🇨🇦", Options: []string{"Canada", "USA", "Peru", "Austria"}, Answer: 0},
	{Prompt: "🇲🇽", Options: []string{"Italy", "Mexico", "Hungary", "Bulgaria"}, Answer: 1},
	{Prompt: "🇦🇺", Options: []string{"New Zealand", "Australia", "UK", "Fiji"}, Answer: 1},
	{Prompt: "🇰🇷", Options: []string{"Japan", "South Korea", "North Korea", "Taiwan"}, Answer: 1},
	{Prompt: "🇷🇺", Options: []string{"France", "Netherlands", "Russia", "Serbia"}, Answer: 2},
}

// FlagQuizLength is the number of flags asked per round.
const FlagQuizLength = 10

// Default returns the full catalog.
func Default() Catalog {
	return Catalog{
		Lessons: append([]Lesson(nil), lessons...),
		Quizzes: append([]Quiz(nil), quizzes...),
		Games:   append([]Game(nil), games...),
	}
}

// FindGame looks up a game by ID
func FindGame(id string) (Game, bool) {
	for _, g := range games {
		if g.ID == id {
			return g, true
		}
	}
	return Game{}, false
}

// FindQuiz looks up a quiz by ID
func FindQuiz(id string) (Quiz, bool) {
	for _, q := range quizzes {
		if q.ID == id {
			return q, true
		}
	}
	return Quiz{}, false
}

// FindLessonByVideo looks up the lesson that owns a video
func FindLessonByVideo(videoID string) (Lesson, bool) {
	for _, l := range lessons {
		if l.VideoID == videoID {
			return l, true
		}
	}
	return Lesson{}, false
}

// LockedGames returns the IDs of games that cost coins, sorted.
func LockedGames() []string {
	var ids []string
	for _, g := range games {
		if g.Cost > 0 {
			ids = append(ids, g.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// MaxScore returns the highest correct-answer count a quiz or game can
// report. The bool is false for content without a known bound.
func MaxScore(id string) (int, bool) {
	if q, ok := FindQuiz(id); ok {
		return len(q.Questions), true
	}
	switch id {
	case "flag-quiz":
		return FlagQuizLength, true
	case "continent-match":
		return len(Continents), true
	case "letter-match":
		return len(Letters), true
	case "memory-recap":
		return len(MemoryPairs), true
	}
	return 0, false
}
