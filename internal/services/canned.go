package services

import "context"

// cannedReply stands in for a provider answer when no credential is set. It
// is plain reply text and goes through ParseCards like any live answer.
const cannedReply = `[
  {"front": "Что такое обучение?", "back": "Процесс приобретения знаний, навыков и компетенций через изучение, практику или преподавание."},
  {"front": "Флэш-карточки", "back": "Инструмент для обучения, использующий активное воспроизведение информации для улучшения запоминания."},
  {"front": "Искусственный интеллект", "back": "Технология, позволяющая машинам выполнять задачи, которые обычно требуют человеческого интеллекта."},
  {"front": "Telegram Bot", "back": "Автоматизированная программа, которая работает в мессенджере Telegram и может взаимодействовать с пользователями."},
  {"front": "Mini App", "back": "Легковесное приложение, которое работает внутри другого приложения без необходимости отдельной установки."}
]`

type CannedSynthesizer struct {
	Reply string
}

func NewCannedSynthesizer() *CannedSynthesizer {
	return &CannedSynthesizer{Reply: cannedReply}
}

func (s *CannedSynthesizer) Name() string { return "canned" }

func (s *CannedSynthesizer) Synthesize(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.Reply, nil
}
