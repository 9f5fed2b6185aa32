// password инкапсулирует хэширование и проверку паролей (bcrypt).
//
// Стоимость проверки намеренно высокая (настраиваемый work factor bcrypt),
// чтобы перебор по утёкшей базе хэшей был дорогим. Пакет не имеет побочных
// эффектов и никогда не логирует сам пароль.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash — заранее вычисленный bcrypt-хэш случайной строки.
// Используется для выравнивания времени ответа, когда пользователь
// не найден: дорогое сравнение выполняется в любом случае, и по таймингу
// нельзя отличить "нет такого email" от "неверный пароль".
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Hash хэширует пароль с помощью bcrypt.
func Hash(password string) (string, error) {
	const op = "password.Hash"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// Verify сравнивает пароль с хэшем.
func Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// DummyCompare выполняет bcrypt-сравнение против фиктивного хэша.
// Результат всегда false; вызывается на пути "пользователь не найден".
func DummyCompare(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password)) == nil
}
