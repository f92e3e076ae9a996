package mysql

import (
	"encoding/json"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// ER_DUP_ENTRY
const errDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *gomysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

// JSON columns go over the wire as text.
func jsonText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
