package api

import (
	"bytes"
	"encoding/json"
	"log"
)

// Strategy способ, которым удалось извлечь JSON из тела ответа
type Strategy int

const (
	ViaEmpty        Strategy = iota // пустое тело, результат null
	ViaLastSegment                  // последний объект из склеенных
	ViaFirstSegment                 // первый объект из склеенных
	ViaWhole                        // тело целиком
	ViaCleaned                      // после удаления BOM и пробелов
)

func (s Strategy) String() string {
	switch s {
	case ViaEmpty:
		return "empty"
	case ViaLastSegment:
		return "last-segment"
	case ViaFirstSegment:
		return "first-segment"
	case ViaWhole:
		return "whole"
	case ViaCleaned:
		return "cleaned"
	}
	return "unknown"
}

// Decoded результат разбора тела. Raw == nil означает null.
type Decoded struct {
	Raw json.RawMessage
	Via Strategy
}

var bom = []byte("\xef\xbb\xbf")

// DecodeBody извлекает JSON из тела ответа. Сервис иногда присылает
// несколько склеенных JSON-объектов или тело с BOM, поэтому стратегии
// пробуются по очереди, первая успешная побеждает:
// пустое тело, последний/первый объект при склейке, тело целиком,
// первый объект после очистки.
func DecodeBody(body []byte) (Decoded, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Decoded{Via: ViaEmpty}, nil
	}

	if bytes.Contains(body, []byte("}{")) || bytes.Contains(body, []byte("}\n{")) {
		log.Printf("Обнаружено несколько JSON объектов, берем последний")
		spans := objectSpans(body)
		if len(spans) > 0 {
			if last := spans[len(spans)-1]; json.Valid(last) {
				return Decoded{Raw: clone(last), Via: ViaLastSegment}, nil
			}
			if first := spans[0]; json.Valid(first) {
				return Decoded{Raw: clone(first), Via: ViaFirstSegment}, nil
			}
		}
	}

	whole := bytes.TrimSpace(body)
	if json.Valid(whole) {
		return Decoded{Raw: clone(whole), Via: ViaWhole}, nil
	}

	cleaned := bytes.TrimSpace(bytes.TrimPrefix(body, bom))
	if json.Valid(cleaned) {
		return Decoded{Raw: clone(cleaned), Via: ViaCleaned}, nil
	}
	if spans := objectSpans(cleaned); len(spans) > 0 && json.Valid(spans[0]) {
		return Decoded{Raw: clone(spans[0]), Via: ViaCleaned}, nil
	}

	var v any
	msg := "тело не является JSON"
	if err := json.Unmarshal(whole, &v); err != nil {
		msg = err.Error()
	}
	return Decoded{}, &RequestError{Kind: KindDecode, Message: msg, Snippet: snippet(body)}
}

// objectSpans находит объекты {...} верхнего уровня с учетом вложенности
// и строковых литералов. Незакрытый хвост (обрезанный ответ) пропускается.
// Отличие от простого правила "от последней { до последней }": вложенный
// объект в последнем документе не выдается за отдельный документ, а скобки
// внутри строк не учитываются.
func objectSpans(text []byte) [][]byte {
	var (
		spans    [][]byte
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)

	for i, c := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				spans = append(spans, text[start:i+1])
				start = -1
			}
		}
	}

	return spans
}

func clone(b []byte) json.RawMessage {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
