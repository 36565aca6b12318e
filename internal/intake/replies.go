package intake

import (
	"fmt"
	"strings"

	"contestbot/internal/model"
)

const (
	textClosed        = "⛔ Hozircha konkurs yopiq."
	textAlready       = "❌ Siz allaqachon qatnashgansiz."
	textWelcome       = "Botdagi shartlarga rioya qiling va konkursda bemalol qatnashavering ❗️"
	textSubscribe     = "Iltimos, quyidagi kanallarga obuna bo‘ling va so‘ng tekshirish tugmasini bosing:"
	textNotJoinedYet  = "❌ Siz hali quyidagi kanal(lar)ga obuna bo‘lmadingiz:"
	textAskPhoto      = "📸 Dream League profilingiz rasmini yuboring:"
	textAskTeam       = "🏷 Jamoa nomini kiriting:"
	textAskNewTeam    = "✏️ Yangi jamoa nomini kiriting:"
	textDuplicate     = "❌ Qayta yuborish mumkin emas"
	textRetryConfirm  = "⚠️ Saqlashda xatolik yuz berdi. Iltimos, «Tasdiqlash» tugmasini qayta bosing."
	textTryLater      = "⚠️ Texnik nosozlik. Birozdan so‘ng /start ni qayta yuboring."
	textNeedPhoto     = "📸 Iltimos, rasm yuboring."
	textEmptyTeam     = "🏷 Jamoa nomi bo‘sh bo‘lmasligi kerak. Qayta kiriting:"
	textLongTeam      = "🏷 Jamoa nomi juda uzun (ko‘pi bilan 64 belgi). Qayta kiriting:"
	textNeedDecision  = "Iltimos, «Tasdiqlash» yoki «Tahrirlash» tugmasini bosing."
	textPressStart    = "Boshlash uchun /start ni yuboring."
	buttonStart       = "Boshlash"
	buttonJoin        = "Obuna bo‘lish"
	buttonRecheck     = "Men obuna bo‘ldim (tekshirilsin)"
	buttonConfirm     = "✅ Tasdiqlash"
	buttonEdit        = "✏️ Tahrirlash"
	promoFooterHeader = "✅ BIZDAN UZOQLASHMANG ♻️\n👇👇👇"
)

func greeting(title, body string) string {
	if title == "" {
		return "Salom, bu konkursda qatnashish uchun yaratilgan bot ✅\n\n" + body
	}
	return fmt.Sprintf("Salom, bu %s konkursida qatnashish uchun yaratilgan bot ✅\n\n%s", title, body)
}

func promoFooter(channels []model.PromoChannel) string {
	if len(channels) == 0 {
		return ""
	}
	lines := make([]string, 0, len(channels))
	for _, ch := range channels {
		if link := model.JoinLink(ch.Channel); link != "" {
			lines = append(lines, link)
			continue
		}
		lines = append(lines, ch.Channel)
	}
	return "\n\n" + promoFooterHeader + "\n" + strings.Join(lines, "\n")
}

func startKeyboard() *model.Keyboard {
	return &model.Keyboard{Inline: [][]model.Button{{{Text: buttonStart, Data: CallbackEntry}}}}
}

func subscribeKeyboard(unresolved []model.PromoChannel) *model.Keyboard {
	kb := &model.Keyboard{}
	for _, ch := range unresolved {
		if link := model.JoinLink(ch.Channel); link != "" {
			kb.Inline = append(kb.Inline, []model.Button{{Text: buttonJoin, URL: link}})
		}
	}
	kb.Inline = append(kb.Inline, []model.Button{{Text: buttonRecheck, Data: CallbackRecheck}})
	return kb
}

func confirmKeyboard() *model.Keyboard {
	return &model.Keyboard{Inline: [][]model.Button{{
		{Text: buttonConfirm, Data: CallbackConfirm},
		{Text: buttonEdit, Data: CallbackEdit},
	}}}
}

func subscribeText(recheck bool, unresolved []model.PromoChannel) string {
	if !recheck {
		return textSubscribe
	}
	names := make([]string, 0, len(unresolved))
	for _, ch := range unresolved {
		names = append(names, ch.Channel)
	}
	return textNotJoinedYet + "\n\n" + strings.Join(names, "\n")
}

func previewCaption(displayName, team string) string {
	return fmt.Sprintf("👤 %s\n🏷 Jamoa nomi : %s\n\nTasdiqlaysizmi?", displayName, team)
}
