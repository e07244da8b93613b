package game

import (
	"sync"

	"github.com/ecoquest-ledger/internal/catalog"
)

// FlagQuizID is the game ID of the flag quiz
const FlagQuizID = "flag-quiz"

// QuizSession asks a fixed list of multiple-choice questions in order
type QuizSession struct {
	mu         sync.Mutex
	quizID     string
	questions  []catalog.Question
	index      int
	correct    int
	onComplete func(Result)
}

// NewQuizSession starts a session over questions
func NewQuizSession(quizID string, questions []catalog.Question, onComplete func(Result)) *QuizSession {
	return &QuizSession{
		quizID:     quizID,
		questions:  append([]catalog.Question(nil), questions...),
		onComplete: onComplete,
	}
}

// NewFlagQuiz picks catalog.FlagQuizLength flags from the shuffled pool
func NewFlagQuiz(shuffle Shuffler, onComplete func(Result)) *QuizSession {
	if shuffle == nil {
		shuffle = DefaultShuffler()
	}
	pool := append([]catalog.Question(nil), catalog.Flags...)
	shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > catalog.FlagQuizLength {
		pool = pool[:catalog.FlagQuizLength]
	}
	return NewQuizSession(FlagQuizID, pool, onComplete)
}

// Current returns the question being asked. ok is false once finished.
func (q *QuizSession) Current() (catalog.Question, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.index >= len(q.questions) {
		return catalog.Question{}, false
	}
	return q.questions[q.index], true
}

// Answer picks an option for the current question and moves on
func (q *QuizSession) Answer(option int) (bool, error) {
	q.mu.Lock()
	if q.index >= len(q.questions) {
		q.mu.Unlock()
		return false, ErrGameComplete
	}
	question := q.questions[q.index]
	if option < 0 || option >= len(question.Options) {
		q.mu.Unlock()
		return false, ErrInvalidAnswer
	}

	correct := option == question.Answer
	if correct {
		q.correct++
	}
	q.index++

	var result *Result
	if q.index == len(q.questions) {
		r := q.result()
		result = &r
	}
	q.mu.Unlock()

	if result != nil && q.onComplete != nil {
		q.onComplete(*result)
	}
	return correct, nil
}

// Progress returns the number answered and the total
func (q *QuizSession) Progress() (answered, total int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.index, len(q.questions)
}

// Correct returns the number of correct answers so far
func (q *QuizSession) Correct() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.correct
}

// Complete reports whether every question is answered
func (q *QuizSession) Complete() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.index >= len(q.questions)
}

func (q *QuizSession) result() Result {
	return Result{
		GameID:   q.quizID,
		Score:    q.correct,
		Attempts: len(q.questions),
		Accuracy: accuracy(q.correct, len(q.questions)),
	}
}
