package session

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"calcclient/internal/models"
)

func TestStoreLifecycle(t *testing.T) {
	storage := NewMemoryStorage()
	store, err := NewStore(storage)
	if err != nil {
		t.Fatal(err)
	}

	if store.Get().Authenticated() {
		t.Fatal("новая сессия не должна быть авторизованной")
	}

	if err := store.Set("tok", "ivan"); err != nil {
		t.Fatal(err)
	}
	if got := store.Get(); got.Token != "tok" || got.Username != "ivan" {
		t.Errorf("Get() = %+v", got)
	}

	// сессия переживает "перезагрузку страницы"
	reloaded, err := NewStore(storage)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Get(); got.Token != "tok" || got.Username != "ivan" {
		t.Errorf("после перезагрузки Get() = %+v", got)
	}
}

// failingStorage отказывает в записи одного ключа
type failingStorage struct {
	*MemoryStorage
	failKey string
}

func (f *failingStorage) Set(key, value string) error {
	if key == f.failKey {
		return errors.New("диск переполнен")
	}
	return f.MemoryStorage.Set(key, value)
}

func TestSetRollsBackToken(t *testing.T) {
	tests := []struct {
		name      string
		prevToken string
		prevUser  string
	}{
		{name: "была сессия", prevToken: "old", prevUser: "alice"},
		{name: "сессии не было"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := &failingStorage{MemoryStorage: NewMemoryStorage()}
			store, _ := NewStore(storage)
			if tt.prevToken != "" {
				if err := store.Set(tt.prevToken, tt.prevUser); err != nil {
					t.Fatal(err)
				}
			}

			storage.failKey = KeyUsername
			if err := store.Set("new", "bob"); err == nil {
				t.Fatal("Set() должен вернуть ошибку хранилища")
			}

			want := models.Session{Token: tt.prevToken, Username: tt.prevUser}
			if got := store.Get(); got != want {
				t.Errorf("Get() = %+v, want %+v", got, want)
			}
			reloaded, err := NewStore(storage)
			if err != nil {
				t.Fatal(err)
			}
			if got := reloaded.Get(); got != want {
				t.Errorf("после перезагрузки Get() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestClearIsIdempotent(t *testing.T) {
	storage := NewMemoryStorage()
	store, _ := NewStore(storage)
	_ = store.Set("tok", "ivan")
	_ = store.RememberExpression("1", "2+2")

	for i := 0; i < 2; i++ {
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() #%d ошибка: %v", i+1, err)
		}
		if got := store.Get(); got != (models.Session{}) {
			t.Errorf("после Clear() #%d сессия = %+v", i+1, got)
		}
		for _, key := range []string{KeyToken, KeyUsername, KeyExpressions} {
			if _, ok, _ := storage.Get(key); ok {
				t.Errorf("после Clear() #%d ключ %s остался в хранилище", i+1, key)
			}
		}
		if _, ok := store.ExpressionText("1"); ok {
			t.Errorf("после Clear() #%d карта выражений не очищена", i+1)
		}
	}
}

func TestRememberExpression(t *testing.T) {
	storage := NewMemoryStorage()
	store, _ := NewStore(storage)

	if err := store.RememberExpression("42", "3+3"); err != nil {
		t.Fatal(err)
	}

	reloaded, _ := NewStore(storage)
	text, ok := reloaded.ExpressionText("42")
	if !ok || text != "3+3" {
		t.Errorf("ExpressionText() = %q, %v", text, ok)
	}
}

func TestBrokenExpressionMapIsIgnored(t *testing.T) {
	storage := NewMemoryStorage()
	_ = storage.Set(KeyExpressions, "{не json")
	_ = storage.Set(KeyToken, "tok")

	store, err := NewStore(storage)
	if err != nil {
		t.Fatalf("NewStore() не должен падать на битой карте: %v", err)
	}
	if store.Token() != "tok" {
		t.Errorf("Token() = %q", store.Token())
	}
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	claims := jwt.MapClaims{
		"user_id": 7,
		"login":   "ivan",
		"exp":     exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("любой-секрет"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "корректный токен", token: token},
		{name: "пустой токен", token: "", wantErr: true},
		{name: "не JWT", token: "opaque-token", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClaims(tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClaims() ошибка = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.UserID != 7 || got.Login != "ivan" {
				t.Errorf("ParseClaims() = %+v", got)
			}
			left, ok := got.ExpiresIn(time.Now())
			if !ok || left <= 0 || left > time.Hour {
				t.Errorf("ExpiresIn() = %v, %v", left, ok)
			}
		})
	}
}
