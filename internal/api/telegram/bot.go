package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	app "roadsense/internal/application"
	"roadsense/internal/domain/entity"
	"roadsense/internal/lgr"
)

const (
	msgStart = `👋 Привет! Я бот для обследования дорожного покрытия.

📍 Пришлите геопозицию участка, затем 📸 фото покрытия: я найду выбоины и трещины, оценю участок и сохраню обследование.

📋 Команды:
/inspect — начать обследование
/help — справка
/cancel — отменить текущую операцию`

	msgHelp = `ℹ️ Как провести обследование:

1️⃣ Отправьте /inspect
2️⃣ Пришлите геопозицию участка
3️⃣ Пришлите фото покрытия
4️⃣ Получите оценку участка и фото с отмеченными дефектами

💡 Рекомендации:
• Снимайте при дневном свете
• Держите камеру над участком, без сильного наклона
• Одно фото — один участок

📋 Команды:
/inspect — начать обследование
/cancel — отменить операцию`

	msgAwaitingLocation = "📍 Пришлите геопозицию участка (скрепка → Геопозиция)."
	msgLocationSaved    = "📍 Точка %s сохранена. Теперь пришлите фото покрытия."
	msgNeedLocation     = "📍 Сначала пришлите геопозицию участка."
	msgCancelled        = "❌ Обследование отменено. Отправьте /inspect, чтобы начать заново."
	msgSendInspect      = "📸 Отправьте /inspect, чтобы начать обследование."
	msgUnknownCommand   = "❓ Неизвестная команда. Используйте /help для справки."
	msgProcessing       = "⏳ Анализирую снимок..."
	msgBusy             = "⏳ Предыдущий снимок ещё обрабатывается, подождите."
	msgProcessingError  = "⚠️ Не удалось обработать снимок. Попробуйте прислать другое фото этого же участка."

	downloadTimeout = 30 * time.Second
)

// messenger часть Bot API, которой пользуется бот
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot принимает обследования от инспекторов в Telegram
type Bot struct {
	api      messenger
	updates  func() tgbotapi.UpdatesChannel
	stop     func()
	client   *http.Client
	users    *app.UserService
	pipeline *app.InspectionPipeline
}

// NewBot создаёт нового бота
func NewBot(token string, users *app.UserService, pipeline *app.InspectionPipeline) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}

	lgr.Logger.Info("telegram bot authorized", "account", api.Self.UserName)

	b := newBot(api, users, pipeline, &http.Client{Timeout: downloadTimeout})
	b.updates = func() tgbotapi.UpdatesChannel {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		return api.GetUpdatesChan(u)
	}
	b.stop = api.StopReceivingUpdates
	return b, nil
}

func newBot(api messenger, users *app.UserService, pipeline *app.InspectionPipeline, client *http.Client) *Bot {
	return &Bot{
		api:      api,
		client:   client,
		users:    users,
		pipeline: pipeline,
	}
}

// Run обрабатывает сообщения до отмены ctx; каждое сообщение в своей горутине
func (b *Bot) Run(ctx context.Context) error {
	if b.updates == nil {
		return errors.New("bot has no update source")
	}
	updates := b.updates()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.stop()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer wg.Done()
				b.handleMessage(ctx, msg)
			}(update.Message)
		}
	}
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.users.Get(ctx, msg.From.ID, msg.Chat.ID)
	if err != nil {
		lgr.Logger.Error("get user", "user_id", msg.From.ID, lgr.Err(err))
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg, user)
	case msg.Location != nil:
		b.handleLocation(ctx, msg, user)
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg, user)
	case user.State == entity.StateAwaitingLocation:
		b.sendMessage(msg.Chat.ID, msgNeedLocation)
	default:
		b.sendMessage(msg.Chat.ID, msgSendInspect)
	}
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, user *entity.User) {
	switch msg.Command() {
	case "start":
		b.transition(b.users.Restart(ctx, user.ID, msg.Chat.ID))
		b.sendMessage(msg.Chat.ID, msgStart)

	case "help":
		b.sendMessage(msg.Chat.ID, msgHelp)

	case "inspect", "check":
		if user.State == entity.StateProcessing {
			b.sendMessage(msg.Chat.ID, msgBusy)
			return
		}
		b.transition(b.users.BeginInspection(ctx, user.ID, msg.Chat.ID))
		reply := tgbotapi.NewMessage(msg.Chat.ID, msgAwaitingLocation)
		reply.ReplyMarkup = tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonLocation("📍 Отправить геопозицию"),
		))
		b.send(reply)

	case "cancel":
		b.transition(b.users.Cancel(ctx, user.ID, msg.Chat.ID))
		reply := tgbotapi.NewMessage(msg.Chat.ID, msgCancelled)
		reply.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		b.send(reply)

	default:
		b.sendMessage(msg.Chat.ID, msgUnknownCommand)
	}
}

func (b *Bot) handleLocation(ctx context.Context, msg *tgbotapi.Message, user *entity.User) {
	if user.State == entity.StateProcessing {
		b.sendMessage(msg.Chat.ID, msgBusy)
		return
	}

	lat, lng := msg.Location.Latitude, msg.Location.Longitude
	if _, err := b.users.SetLocation(ctx, user.ID, msg.Chat.ID, lat, lng); err != nil {
		lgr.Logger.Error("save location", "user_id", user.ID, lgr.Err(err))
		return
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf(msgLocationSaved, app.FallbackAddress(lat, lng)))
	reply.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	b.send(reply)
}

// handlePhoto прогоняет снимок через конвейер и отвечает аннотированным фото
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message, user *entity.User) {
	user, err := b.users.StartProcessing(ctx, user.ID, msg.Chat.ID)
	switch {
	case errors.Is(err, app.ErrDialogBusy):
		b.sendMessage(msg.Chat.ID, msgBusy)
		return
	case errors.Is(err, app.ErrNoLocation):
		b.sendMessage(msg.Chat.ID, msgNeedLocation)
		return
	case err != nil:
		lgr.Logger.Error("start processing", "user_id", msg.From.ID, lgr.Err(err))
		return
	}
	b.sendMessage(msg.Chat.ID, msgProcessing)

	// Берём снимок с максимальным разрешением
	photo := msg.Photo[len(msg.Photo)-1]

	imageData, err := b.downloadFile(ctx, photo.FileID)
	if err != nil {
		lgr.Logger.Error("download photo", "user_id", user.ID, lgr.Err(err))
		b.fail(ctx, user, msg.Chat.ID)
		return
	}

	out, err := b.pipeline.Process(ctx, app.Submission{
		Image:       imageData,
		Lat:         user.Lat,
		Lng:         user.Lng,
		Timestamp:   sentAt(msg),
		InspectorID: user.InspectorID(),
	})
	if err != nil {
		lgr.Logger.Error("process photo", "user_id", user.ID, lgr.Err(err))
		b.fail(ctx, user, msg.Chat.ID)
		return
	}

	reply := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FileBytes{Name: out.Record.ID + ".png", Bytes: out.Annotated})
	reply.Caption = formatReport(out.Record)
	b.send(reply)

	b.transition(b.users.Finish(ctx, user.ID, msg.Chat.ID))
}

// fail оставляет точку, чтобы инспектор мог прислать другое фото
func (b *Bot) fail(ctx context.Context, user *entity.User, chatID int64) {
	b.sendMessage(chatID, msgProcessingError)
	b.transition(b.users.RetryPhoto(ctx, user.ID, chatID))
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// sentAt время отправки фото; без даты его заменит время приёма
func sentAt(msg *tgbotapi.Message) time.Time {
	if msg.Date == 0 {
		return time.Time{}
	}
	return time.Unix(int64(msg.Date), 0).UTC()
}

func (b *Bot) transition(_ *entity.User, err error) {
	if err != nil {
		lgr.Logger.Error("update dialog state", lgr.Err(err))
	}
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		lgr.Logger.Warn("telegram send failed", lgr.Err(err))
	}
}
