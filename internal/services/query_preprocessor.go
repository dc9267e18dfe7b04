package services

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// 需要去除的标点：中文标点、ASCII 标点、特殊符号
const strippedPunctuation = "，。！？；：“”‘’（）【】《》〈〉「」『』〔〕〖〗〘〙〚〛、" +
	"!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var (
	mentionPattern   = regexp.MustCompile(`@[\p{L}\p{N}_]+`)
	spacePattern     = regexp.MustCompile(`[\s\x{3000}]+`)
	numberingPattern = regexp.MustCompile(`^\d+\.\s*`)
	leadingDigits    = regexp.MustCompile(`^\d+\s*`)
	controlPattern   = regexp.MustCompile(`[\x00-\x1f\x7f-\x{9f}\x{200b}-\x{200d}\x{feff}]`)

	punctuationSet = func() map[rune]struct{} {
		set := make(map[rune]struct{}, utf8.RuneCountInString(strippedPunctuation))
		for _, r := range strippedPunctuation {
			set[r] = struct{}{}
		}
		return set
	}()
)

// minQueryRunes 清洗后至少保留的字符数
const minQueryRunes = 2

// CleanQuery 清洗群聊里的提问：去掉 @提及、多余空白、标点、行首编号和控制字符
func CleanQuery(query string) string {
	if query == "" {
		return ""
	}

	query = mentionPattern.ReplaceAllString(query, "")
	query = strings.ReplaceAll(query, "@", "")
	query = spacePattern.ReplaceAllString(query, " ")
	query = strings.Map(func(r rune) rune {
		if _, ok := punctuationSet[r]; ok {
			return -1
		}
		return r
	}, query)
	query = numberingPattern.ReplaceAllString(query, "")
	query = leadingDigits.ReplaceAllString(query, "")
	query = controlPattern.ReplaceAllString(query, "")
	return strings.TrimSpace(query)
}

// PreprocessQuery 返回清洗后的问题，清洗后不足两个字符时 ok 为 false
func PreprocessQuery(query string) (string, bool) {
	cleaned := CleanQuery(query)
	if utf8.RuneCountInString(cleaned) < minQueryRunes {
		return "", false
	}
	return cleaned, true
}
