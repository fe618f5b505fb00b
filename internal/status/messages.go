package status

import (
	"fmt"
	"time"

	"github.com/foxseedlab/dmzstatus/internal/discord"
)

const (
	ButtonRefresh  = "refresh"
	ButtonPrevious = "prev"
	ButtonNext     = "next"

	statusTitle           = "DMZ 봇 실시간 현황"
	statusPageFormat      = "페이지 %d/%d"
	statusFieldFormat     = "🗣 채팅: %s | 🔊 통화: %s/%s | ⏱ %s 같이 통화: %s"
	statusTogetherMark    = "✅"
	statusNotTogetherMark = "❌"
	statusEmptyFieldName  = "추적 중인 멤버가 없습니다."
	statusEmptyFieldValue = "-# 봇이 시작될 때의 서버 멤버만 표시됩니다."
	buttonLabelRefresh    = "🔄 새로고침"
	buttonLabelPrevious   = "◀ 이전"
	buttonLabelNext       = "다음 ▶"
)

func statusButtons() []discord.Button {
	return []discord.Button{
		{CustomID: ButtonRefresh, Label: buttonLabelRefresh, Style: discord.ButtonStyleSecondary},
		{CustomID: ButtonPrevious, Label: buttonLabelPrevious, Style: discord.ButtonStylePrimary},
		{CustomID: ButtonNext, Label: buttonLabelNext, Style: discord.ButtonStylePrimary},
	}
}

func buildStatusMessage(view View, togetherThreshold time.Duration) discord.StatusMessage {
	fields := make([]discord.EmbedField, 0, len(view.Rows))
	for _, row := range view.Rows {
		fields = append(fields, discord.EmbedField{
			Name:  row.Name,
			Value: statusFieldValue(row, togetherThreshold),
		})
	}
	if len(fields) == 0 && view.TotalPages == 1 && view.Page == 0 {
		fields = append(fields, discord.EmbedField{Name: statusEmptyFieldName, Value: statusEmptyFieldValue})
	}
	return discord.StatusMessage{
		Embed: discord.Embed{
			Title:       statusTitle,
			Description: fmt.Sprintf(statusPageFormat, view.Page+1, view.TotalPages),
			Timestamp:   view.GeneratedAt,
			Fields:      fields,
		},
		Buttons: statusButtons(),
	}
}

func statusFieldValue(row Row, togetherThreshold time.Duration) string {
	mark := statusNotTogetherMark
	if row.Together {
		mark = statusTogetherMark
	}
	return fmt.Sprintf(statusFieldFormat, row.LastText, row.VoiceTotal, row.LastVoiceLeave, HumanizeTotal(togetherThreshold), mark)
}
