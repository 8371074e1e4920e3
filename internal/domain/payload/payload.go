// Package payload содержит операции над непрозрачными JSON-данными сущностей.
//
// Движок синхронизации не знает схемы сущностей: учеников, групп, платежей.
// Все, что ему нужно от данных, собрано здесь: сравнение, отпечаток,
// слияние, частичное обновление и поиск по строковым полям.
package payload

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrNotObject = errors.New("payload is not a JSON object")
	ErrInvalid   = errors.New("payload is not valid JSON")
)

// timestampFields поля, из которых извлекается время изменения, если транспорт его не передал.
var timestampFields = []string{"lastModified", "updatedAt", "updated_at", "createdAt", "created_at"}

// Valid сообщает, является ли raw корректным JSON.
func Valid(raw json.RawMessage) bool {
	return len(raw) > 0 && json.Valid(raw)
}

// IsNull истинно для пустых данных и литерала null.
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Object декодирует raw в объект. Пустые данные и null дают пустой объект.
func Object(raw json.RawMessage) (map[string]any, error) {
	if IsNull(raw) {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}

	return obj, nil
}

// Canonical перекодирует raw так, что логически равные документы дают равные байты.
func Canonical(raw json.RawMessage) ([]byte, error) {
	if IsNull(raw) {
		return []byte("null"), nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	// encoding/json сортирует ключи map при кодировании
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical payload: %w", err)
	}

	return out, nil
}

// Equal сравнивает документы без учета порядка ключей и пробелов.
func Equal(a, b json.RawMessage) bool {
	ca, errA := Canonical(a)
	cb, errB := Canonical(b)
	if errA != nil || errB != nil {
		return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
	}
	return bytes.Equal(ca, cb)
}

// Checksum возвращает BLAKE2b-256 канонической формы документа.
func Checksum(raw json.RawMessage) string {
	canonical, err := Canonical(raw)
	if err != nil {
		canonical = raw
	}
	sum := blake2b.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Patch накладывает поля partial поверх base (неглубокое слияние).
func Patch(base, partial json.RawMessage) (json.RawMessage, error) {
	dst, err := Object(base)
	if err != nil {
		return nil, err
	}

	if IsNull(partial) {
		return nil, ErrNotObject
	}
	src, err := Object(partial)
	if err != nil {
		return nil, err
	}

	for k, v := range src {
		dst[k] = v
	}

	return json.Marshal(dst)
}

// Merge строит аддитивное слияние: за основу берется remote, из local
// добавляются только ключи, которых в remote нет. Оба документа должны быть объектами.
func Merge(local, remote json.RawMessage) (json.RawMessage, error) {
	if IsNull(local) || IsNull(remote) {
		return nil, ErrNotObject
	}

	l, err := Object(local)
	if err != nil {
		return nil, err
	}
	r, err := Object(remote)
	if err != nil {
		return nil, err
	}

	for k, v := range l {
		if _, ok := r[k]; !ok {
			r[k] = v
		}
	}

	return json.Marshal(r)
}

// Matches ищет query (без учета регистра) в указанных полях или, если поля
// не заданы, во всех строковых полях верхнего уровня.
func Matches(raw json.RawMessage, query string, fields ...string) bool {
	obj, err := Object(raw)
	if err != nil {
		return false
	}

	needle := strings.ToLower(query)

	if len(fields) == 0 {
		fields = make([]string, 0, len(obj))
		for k := range obj {
			fields = append(fields, k)
		}
		sort.Strings(fields)
	}

	for _, f := range fields {
		s, ok := obj[f].(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}

	return false
}

// Timestamp извлекает время изменения из известных полей документа.
func Timestamp(raw json.RawMessage) (time.Time, bool) {
	obj, err := Object(raw)
	if err != nil {
		return time.Time{}, false
	}

	for _, f := range timestampFields {
		s, ok := obj[f].(string)
		if !ok {
			continue
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts, true
		}
	}

	return time.Time{}, false
}
