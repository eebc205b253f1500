package util

import (
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
)

// restrictedSecurityInfo replaces the owner and the DACL, and stops the
// directory from inheriting entries from its parent.
const restrictedSecurityInfo = windows.OWNER_SECURITY_INFORMATION |
	windows.DACL_SECURITY_INFORMATION |
	windows.PROTECTED_DACL_SECURITY_INFORMATION

// EnforcePermission limits the directory holding file to the account the
// update engine runs as and the Administrators group. It guards the directory
// of the persisted updater state.
func EnforcePermission(file string) error {
	dir := filepath.Dir(file)

	owner, err := processOwner()
	if err != nil {
		return fmt.Errorf("resolve process owner: %w", err)
	}

	admins, err := windows.CreateWellKnownSid(windows.WinBuiltinAdministratorsSid)
	if err != nil {
		return fmt.Errorf("resolve administrators group: %w", err)
	}

	dacl, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{
		fullControl(owner, windows.TRUSTEE_IS_USER),
		fullControl(admins, windows.TRUSTEE_IS_WELL_KNOWN_GROUP),
	}, nil)
	if err != nil {
		return fmt.Errorf("build ACL for %s: %w", dir, err)
	}

	if err := windows.SetNamedSecurityInfo(dir, windows.SE_FILE_OBJECT, restrictedSecurityInfo, owner, nil, dacl, nil); err != nil {
		return fmt.Errorf("apply ACL to %s: %w", dir, err)
	}
	return nil
}

func fullControl(sid *windows.SID, trusteeType windows.TRUSTEE_TYPE) windows.EXPLICIT_ACCESS {
	return windows.EXPLICIT_ACCESS{
		AccessPermissions: windows.GENERIC_ALL,
		AccessMode:        windows.SET_ACCESS,
		Inheritance:       windows.SUB_CONTAINERS_AND_OBJECTS_INHERIT,
		Trustee: windows.TRUSTEE{
			MultipleTrusteeOperation: windows.NO_MULTIPLE_TRUSTEE,
			TrusteeForm:              windows.TRUSTEE_IS_SID,
			TrusteeType:              trusteeType,
			TrusteeValue:             windows.TrusteeValueFromSID(sid),
		},
	}
}

// processOwner returns the user SID of the current process token.
func processOwner() (*windows.SID, error) {
	var token windows.Token
	if err := windows.OpenProcessToken(windows.CurrentProcess(), windows.TOKEN_QUERY, &token); err != nil {
		return nil, err
	}
	defer func() {
		if err := token.Close(); err != nil {
			log.Debugf("close process token: %v", err)
		}
	}()

	user, err := token.GetTokenUser()
	if err != nil {
		return nil, err
	}
	return user.User.Sid, nil
}
