package bridge

import (
	"errors"
	"fmt"
	"testing"

	"qian/internal/config"
	"qian/internal/fsutil"
	"qian/internal/snapshot"
	"qian/internal/watcher"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{fmt.Errorf("%w: empty", fsutil.ErrInvalidPath), KindInvalidPath},
		{fmt.Errorf("%w: /x", snapshot.ErrNotFound), KindNotFound},
		{fmt.Errorf("%w: /x", snapshot.ErrNotADirectory), KindNotADirectory},
		{fmt.Errorf("%w: /x", snapshot.ErrPermissionDenied), KindPermissionDenied},
		{fmt.Errorf("%w: /x", watcher.ErrWatchUnavailable), KindWatchUnavailable},
		{fmt.Errorf("%w: disk", config.ErrConfigIO), KindConfigIO},
		{config.ErrInvalidPreferences, KindInvalidArgument},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v): expected %q, got %q", tc.err, tc.want, got)
		}
	}
}
