package sqlpool

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type user struct {
	ID       int
	Username string
	Password string
}

type audited struct {
	CreatedAt time.Time
	UpdatedBy string
}

type account struct {
	ID int
	audited
	Email    sql.NullString
	internal string
	Secret   string `db:"-"`
	Tags     []byte
}

func TestPack(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		args []any
		want []any
	}{
		{
			name: "mixed scalar array and tuple",
			args: []any{42, [2]string{"a", "b"}, T("x", "y", "z")},
			want: []any{42, "a", "b", "x", "y", "z"},
		},
		{
			name: "struct by declared field order",
			args: []any{user{ID: 7, Username: "bob", Password: "pw"}},
			want: []any{7, "bob", "pw"},
		},
		{
			name: "pointer to struct",
			args: []any{&user{ID: 1, Username: "a", Password: "b"}},
			want: []any{1, "a", "b"},
		},
		{
			name: "no arguments",
			args: nil,
			want: []any{},
		},
		{
			name: "nil stays one slot",
			args: []any{nil, "x"},
			want: []any{nil, "x"},
		},
		{
			name: "time and bytes are scalars",
			args: []any{now, []byte("blob")},
			want: []any{now, []byte("blob")},
		},
		{
			name: "slice expands like an array",
			args: []any{[]int{1, 2, 3}},
			want: []any{1, 2, 3},
		},
		{
			name: "nested tuple is opened one level",
			args: []any{T(1, T(2, [2]int{3, 4}), 5)},
			want: []any{1, 2, [2]int{3, 4}, 5},
		},
		{
			name: "tuple components bind as one slot each",
			args: []any{T([2]int{1, 2}, "z")},
			want: []any{[2]int{1, 2}, "z"},
		},
		{
			name: "struct inside a tuple is not reflected",
			args: []any{T(user{ID: 3, Username: "c", Password: "d"})},
			want: []any{user{ID: 3, Username: "c", Password: "d"}},
		},
		{
			name: "array alone and wrapped in a tuple",
			args: []any{[2]int{1, 2}, T(T([2]int{1, 2}))},
			want: []any{1, 2, [2]int{1, 2}},
		},
		{
			name: "valuer struct is a scalar",
			args: []any{sql.NullInt64{Int64: 9, Valid: true}},
			want: []any{sql.NullInt64{Int64: 9, Valid: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Pack(tt.args...))
		})
	}
}

func TestPackStructFields(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := account{
		ID:       3,
		audited:  audited{CreatedAt: now, UpdatedBy: "admin"},
		Email:    sql.NullString{String: "a@example.com", Valid: true},
		internal: "hidden",
		Secret:   "skipped",
		Tags:     []byte("t"),
	}

	got := Pack(a)
	require.Equal(t, []any{
		3,
		now,
		"admin",
		sql.NullString{String: "a@example.com", Valid: true},
		[]byte("t"),
	}, got)
}

func TestPackIsPositional(t *testing.T) {
	t.Parallel()

	// Slot count is the sum of the argument widths.
	got := Pack(1, [3]int{2, 3, 4}, T("a", "b"), user{})
	require.Len(t, got, 1+3+2+3)
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	var nilUser *user
	tests := []struct {
		arg  any
		want ArgKind
	}{
		{nil, ArgScalar},
		{42, ArgScalar},
		{"s", ArgScalar},
		{[]byte("b"), ArgScalar},
		{time.Now(), ArgScalar},
		{sql.NullString{}, ArgScalar},
		{nilUser, ArgScalar},
		{[2]int{1, 2}, ArgFixedArray},
		{[]string{"a"}, ArgFixedArray},
		{T(1, 2), ArgTuple},
		{user{}, ArgStruct},
		{&user{}, ArgStruct},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, KindOf(tt.arg), "KindOf(%#v)", tt.arg)
	}
}

func TestArgKindString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "scalar", ArgScalar.String())
	require.Equal(t, "fixed_array", ArgFixedArray.String())
	require.Equal(t, "tuple", ArgTuple.String())
	require.Equal(t, "struct", ArgStruct.String())
	require.Equal(t, "unknown", ArgKind(99).String())
}
