package util_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/windows"

	"github.com/netbirdio/updateengine/util"
)

var _ = Describe("EnforcePermission", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "updateengine_permission_test_*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("should protect the state directory and keep it writable for the owner", func() {
		file := filepath.Join(dir, "state", "state.json")

		err := util.WriteBytesWithRestrictedPermission(context.Background(), file, []byte(`{}`))
		Expect(err).NotTo(HaveOccurred())

		sd, err := windows.GetNamedSecurityInfo(filepath.Dir(file), windows.SE_FILE_OBJECT,
			windows.DACL_SECURITY_INFORMATION)
		Expect(err).NotTo(HaveOccurred())

		control, _, err := sd.Control()
		Expect(err).NotTo(HaveOccurred())
		Expect(control & windows.SE_DACL_PROTECTED).NotTo(BeZero())

		Expect(util.WriteBytesWithRestrictedPermission(context.Background(), file, []byte(`{"a":1}`))).To(Succeed())
		content, err := os.ReadFile(file)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal(`{"a":1}`))
	})
})
