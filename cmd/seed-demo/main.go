package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	studentCount    = 20
	studentPassword = "stemsijaya"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	studentRepo := repository.NewStudentRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	fmt.Printf("=== Seeding %d Students ===\n", studentCount)

	hash, err := bcrypt.GenerateFromPassword([]byte(studentPassword), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	names := []string{
		"Budi Santoso", "Siti Aminah", "Andi Pratama", "Rina Wati", "Joko Susilo",
		"Ayu Lestari", "Dodi Kusuma", "Eka Putri", "Fahri Hamzah", "Gita Savitri",
		"Hendra Gunawan", "Ika Sari", "Jamal Mirdad", "Kiki Fatmala", "Lukman Hakim",
		"Maya Septiana", "Nanda Pratama", "Oki Setiana", "Putri Dian", "Qori Maharani",
	}

	successCount := 0
	for i := range studentCount {
		student := &model.Student{
			NISN:         fmt.Sprintf("user%d", i+1),
			Name:         names[i%len(names)],
			PasswordHash: string(hash),
		}
		if err := studentRepo.Create(ctx, student); err != nil {
			if errors.Is(err, repository.ErrDuplicateNISN) {
				continue
			}
			fmt.Printf("Error creating student %s (NISN: %s): %v\n", student.Name, student.NISN, err)
			continue
		}
		successCount++
	}
	fmt.Printf("Added %d/%d students (password %q).\n", successCount, studentCount, studentPassword)

	fmt.Println("=== Seeding Demo Exam ===")

	exam := &model.Exam{
		Title:           "Bahasa Inggris - Latihan",
		DurationMinutes: 45,
		MaxWarnings:     model.DefaultMaxWarnings,
		Status:          model.ExamStatusPublished,
	}
	if err := examRepo.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}

	for i, q := range demoQuestions() {
		q.ExamID = exam.ID
		q.OrderNum = i + 1
		if err := questionRepo.Create(ctx, &q); err != nil {
			log.Fatal().Err(err).Int("order", q.OrderNum).Msg("Failed to create question")
		}
	}

	fmt.Printf("\nSeed completed! Exam %s is published.\n", exam.ID)
}

func demoQuestions() []model.Question {
	audio := "https://drive.google.com/file/d/1a2B3c4D5e6F7g8H9i0J/view?usp=sharing"
	return []model.Question{
		{Type: model.QuestionTypeContentBlock, Payload: raw(model.ContentPayload{HTML: "<p>Jawablah semua soal dengan teliti.</p>"})},
		{Type: model.QuestionTypeSingleChoice, Points: 2,
			Payload:       raw(model.ChoicePayload{Prompt: "She ___ to school every day.", Options: []string{"go", "goes", "going"}}),
			CorrectAnswer: raw(1)},
		{Type: model.QuestionTypeBoolean, Points: 1,
			Payload:       raw(model.BooleanPayload{Statement: "The past tense of 'run' is 'ran'."}),
			CorrectAnswer: raw(true)},
		{Type: model.QuestionTypePageBreak, Payload: raw(model.PageBreakPayload{})},
		{Type: model.QuestionTypeAudioBlock, AudioURL: &audio, Payload: raw(model.AudioPayload{Caption: "Listen to the conversation."})},
		{Type: model.QuestionTypeTypedBlank, Points: 2,
			Payload:       raw(model.BlankPayload{Text: "Yesterday I ___ to the market."}),
			CorrectAnswer: raw("went")},
		{Type: model.QuestionTypeWordReorder, Points: 3,
			Payload:       raw(model.ReorderPayload{Prompt: "Arrange the words.", Tokens: []string{"ready", "I", "am"}}),
			CorrectAnswer: raw([]string{"I", "am", "ready"})},
		{Type: model.QuestionTypeMatching, Points: 2,
			Payload:       raw(model.MatchingPayload{Prompt: "Match the opposites.", Left: []string{"hot", "big"}, Right: []string{"small", "cold"}}),
			CorrectAnswer: raw([][2]int{{0, 1}, {1, 0}})},
	}
}

func raw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
