package model

// Field names of the registry record payload. The registry serves flat JSON
// records whose property names match these constants; the mapping onto the
// episode aggregate is the explicit table in episode.go.
const (
	FieldPatientID           = "patientId"
	FieldMedicalRecordNumber = "medicalRecordNumber"
	FieldEpisodeID           = "episodeId"
	FieldOperationID         = "operationId"
	FieldVisitNumber         = "visitNumber"
	FieldUpdateTime          = "updateTime"
	FieldTotal               = "total"

	FieldName          = "name"
	FieldSex           = "sex"
	FieldBirthDate     = "birthDate"
	FieldAge           = "age"
	FieldEthnicity     = "ethnicity"
	FieldNationality   = "nationality"
	FieldIDCard        = "idCard"
	FieldIDCardType    = "idCardType"
	FieldPhone         = "phone"
	FieldAddress       = "currentAddress"
	FieldMaritalStatus = "maritalStatus"
	FieldProfession    = "profession"
	FieldContactName   = "contactName"
	FieldRelation      = "relation"
	FieldContactPhone  = "contactPhone"
	FieldDrugAllergy   = "drugAllergy"

	FieldAdmissionTime       = "admissionTime"
	FieldAdmissionDepartment = "admissionDepartment"
	FieldAdmissionWard       = "admissionWard"
	FieldAdmissionDiagnosis  = "admissionDiagnosis"
	FieldHospitalAdmission   = "hospitalAdmission"
	FieldHospitalStayCount   = "nthHospital"
	FieldActualHospitalDays  = "actualHospitalDays"
	FieldDoctor              = "doctor"
	FieldResponsibleNurse    = "responsibleNurse"
	FieldNote                = "note"

	FieldDischargeTime         = "dischargeTime"
	FieldDischargeDepartment   = "dischargeDepartment"
	FieldDischargeWard         = "dischargeWard"
	FieldDischargeStatus       = "dischargeStatus"
	FieldDischargeSituation    = "dischargeSituation"
	FieldDischargeInstructions = "dischargeInstructions"

	FieldMainDiagnosisCode   = "mainDiagnosisCode"
	FieldMainDiagnosis       = "mainDiagnosis"
	FieldOtherDiagnosisCodes = "otherDiagnosisCodes"
	FieldOtherDiagnoses      = "otherDiagnoses"

	FieldProcessOrder     = "processOrder"
	FieldOrderDate        = "orderDate"
	FieldOperationCode    = "operationCode"
	FieldOperationName    = "operationName"
	FieldOperationName1   = "operationName1"
	FieldOperationName2   = "operationName2"
	FieldOperationName3   = "operationName3"
	FieldOperationName4   = "operationName4"
	FieldOperationDate    = "operationDate"
	FieldOperationLevel   = "operationLevel"
	FieldOperationSurgeon = "operationSurgeon"
	FieldOperationType    = "operationType"
)

// Question codes of the episode import form on the platform side. One import
// task per admission carries a form with these codes; publishing writes the
// full set on every pass.
const (
	CodePatientID        = "PATIENT_ID"
	CodeMedicalRecordNum = "MED_RECORD_NUM"
	CodeEpisodeID        = "EPISODE_ID"
	CodeVisitNumber      = "VISIT_NUMBER"
	CodeLastImport       = "LAST_IMPORT"
	CodeLastUpdate       = "LAST_UPDATE"
	CodeSource           = "SOURCE"

	CodeEthnicity      = "ETHNICITY"
	CodeIDCard         = "ID_CARD"
	CodeIDCardType     = "ID_CARD_TYPE"
	CodePhone          = "PHONE"
	CodeMaritalStatus  = "MARITAL_STATUS"
	CodeProfession     = "PROFESSION"
	CodeContactName    = "ASSOCIATE_NAME"
	CodeRelation       = "ASSOCIATE_RELATION"
	CodeRelationship   = "RELATIONSHIP_CODE"
	CodeRelativeFamily = "RELATIVE_FAMILY_CODE"
	CodeContactPhone   = "ASSOCIATE_PHONE"
	CodeDrugAllergy    = "DRUG_ALLERGY"

	CodeAdmissionTable       = "ADMISSION_INFO_TABLE"
	CodeAdmissionTime        = "ADMISSION_TIME"
	CodeAdmissionDepartment  = "ADMISSION_DEPARTMENT"
	CodeAdmissionDiagnosis   = "ADMISSION_DIAG"
	CodeHospitalAdmission    = "HOSPITAL_ADMISSION"
	CodeDischargeTime        = "DISCHARGE_TIME"
	CodeDischargeDepartment  = "DISCHARGE_DEPARTMENT"
	CodeDischargeStatus      = "DISCHARGE_STATUS"
	CodeDischargeSituation   = "DISCHARGE_SITUATION"
	CodeDischargeInstruction = "DISCHARGE_INSTRUCT"
	CodeDoctor               = "DOCTOR"
	CodeDoctorCode           = "DOCTOR_CODE"
	CodeResponsibleNurse     = "RESPONSIBLE_NURSE"

	CodeDiagnosisTable     = "DIAGNOSIS_ARRAY"
	CodeMainDiagnosisCode  = "MAIN_DIAG_CODE"
	CodeMainDiagnosis      = "MAIN_DIAG"
	CodeOtherDiagnosisCode = "OTHER_DIAG_CODE"
	CodeOtherDiagnosis     = "OTHER_DIAG"

	CodeProcedureTable    = "PROCEDURE_ARRAY"
	CodeOperationID       = "OPERATION_ID"
	CodeProcessOrder      = "OPERATION_ORDER"
	CodeOperationDate     = "OPERATION_DATE"
	CodeOperationLevel    = "OPERATION_LEVEL"
	CodeOperationSurgeon  = "OPERATION_DOCTOR"
	CodeOperationSurgeonC = "OPERATION_DOCTOR_CODE"
	CodeOperationType     = "OPERATION_TYPE"
	CodeOperationCode     = "OPERATION_CODE"
	CodeOperationName     = "OPERATION_NAME"
	CodeOperationNotes1   = "OPERATION_NOTES1"
	CodeOperationNotes2   = "OPERATION_NOTES2"
	CodeOperationNotes3   = "OPERATION_NOTES3"
	CodeOperationNotes4   = "OPERATION_NOTES4"

	CodeFollowUpAdmission = "FOLLOWUP_ADMISSION"
)

// SourceSystemValue identifies this bridge as the writer of imported records.
const SourceSystemValue = "2"
